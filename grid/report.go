package grid

import (
	"fmt"
	"slices"
)

// Report is the positional view of the last three sections handed to the
// presentation layer. Each row is reversed.
type Report struct {
	Left         []int  `json:"left"`
	Middle       []int  `json:"middle"`
	Right        []int  `json:"right"`
	Occupied     int    `json:"occupied"`
	Capacity     int    `json:"capacity"`
	Detections   int    `json:"detections"`
	ModelVersion string `json:"model_version,omitempty"`
}

// NewReport shapes the last three rows of g into a Report.
func NewReport(g *Grid, occupied map[SlotID]struct{}, detections int) (*Report, error) {
	n := len(g.Rows)
	if n < 3 {
		return nil, fmt.Errorf("report needs at least 3 sections, grid has %d", n)
	}
	capacity := 0
	for i := range g.Rows {
		capacity += len(g.Slots(i))
	}
	return &Report{
		Left:       reversed(g.Rows[n-1]),
		Middle:     reversed(g.Rows[n-2]),
		Right:      reversed(g.Rows[n-3]),
		Occupied:   len(occupied),
		Capacity:   capacity,
		Detections: detections,
	}, nil
}

func reversed(row []int) []int {
	out := slices.Clone(row)
	slices.Reverse(out)
	return out
}
