// Package sheets defines the outbound port for mirroring the cost-center
// report. The ledger in the database stays the source of truth; a mirror
// write failure never affects API reads.
package sheets

import (
	"context"

	"fatture/internal/aggregate"
)

// ReportWriter replaces the mirror destination with the given report.
type ReportWriter interface {
	WriteReport(ctx context.Context, report *aggregate.Report) error
}
