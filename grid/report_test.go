package grid

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReport(t *testing.T) {
	g := &Grid{Rows: [][]int{
		{1, 0, 0},
		{-1, 1, 0, -1},
		{0, 1, 1},
		{1, 0},
	}}
	occupied := map[SlotID]struct{}{{0, 0}: {}, {1, 0}: {}, {2, 1}: {}, {2, 2}: {}, {3, 0}: {}}

	r, err := NewReport(g, occupied, 6)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, r.Left)
	assert.Equal(t, []int{1, 1, 0}, r.Middle)
	assert.Equal(t, []int{-1, 0, 1, -1}, r.Right)
	assert.Equal(t, 5, r.Occupied)
	assert.Equal(t, 10, r.Capacity)
	assert.Equal(t, 6, r.Detections)

	// reversing must not touch the grid
	assert.Equal(t, []int{1, 0}, g.Rows[3])

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"left":[0,1],"middle":[1,1,0],"right":[-1,0,1,-1],"occupied":5,"capacity":10,"detections":6}`, string(raw))
}

func TestNewReport_TooFewSections(t *testing.T) {
	g := &Grid{Rows: [][]int{{0}, {-1, 0, -1}}}
	_, err := NewReport(g, nil, 0)
	assert.Error(t, err)
}
