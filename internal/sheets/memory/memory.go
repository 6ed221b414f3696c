// Package memory is an in-memory ReportWriter for tests and broker-less
// development: it records the last report written instead of calling out.
package memory

import (
	"context"
	"sync"

	"fatture/internal/aggregate"
	ports "fatture/internal/sheets"
)

type Writer struct {
	mu     sync.Mutex
	last   *aggregate.Report
	writes int
}

var _ ports.ReportWriter = (*Writer)(nil)

func New() *Writer {
	return &Writer{}
}

func (w *Writer) WriteReport(ctx context.Context, report *aggregate.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = report
	w.writes++
	return nil
}

// Last returns the most recently written report, nil before the first write.
func (w *Writer) Last() *aggregate.Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Writes reports how many times WriteReport has been called.
func (w *Writer) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}
