package export

import (
	"encoding/json"

	"fatture/internal/aggregate"
	"fatture/internal/core"
)

// chartPoint is one slice of the downstream chart: a cost center and its
// total. Money marshals as an exact decimal string.
type chartPoint struct {
	CostCenter string     `json:"cost_center"`
	Total      core.Money `json:"total"`
}

// renderChart emits the structured summary a charting layer consumes: an
// ordered array of {cost_center, total} pairs in report row order.
func renderChart(rep *aggregate.Report) ([]byte, error) {
	points := make([]chartPoint, 0, len(rep.Rows))
	for _, row := range rep.Rows {
		points = append(points, chartPoint{
			CostCenter: row.CostCenterLabel,
			Total:      row.Total,
		})
	}
	return json.Marshal(points)
}
