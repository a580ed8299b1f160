package grid

import (
	"testing"

	"ParkSlotServer/geometry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(x1, y1, x2, y2 float64, capacity int) Section {
	return Section{Start: geometry.Point{X: x1, Y: y1}, End: geometry.Point{X: x2, Y: y2}, Capacity: capacity}
}

func TestBuild_Empty(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2)}
	layout := Build(sections, nil, 1, 1, nil)
	occupied := ApplyMatches(layout.Grid, layout.Matches)

	if diff := cmp.Diff([][]int{{0, 0}}, layout.Grid.Rows); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, occupied)
	assert.Empty(t, layout.Matches)
}

func TestBuild_ExactMatch(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2)}
	det := SlotBox(geometry.Point{X: 0, Y: 0}, 1, 1)

	layout := Build(sections, []geometry.Box{det}, 1, 1, nil)
	require.Contains(t, layout.Matches, 0)
	assert.Equal(t, SlotID{0, 0}, layout.Matches[0].Slot)
	assert.Equal(t, 1.0, layout.Matches[0].IoU)

	occupied := ApplyMatches(layout.Grid, layout.Matches)
	if diff := cmp.Diff([][]int{{1, 0}}, layout.Grid.Rows); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[SlotID]struct{}{{0, 0}: {}}, occupied)
}

func TestBuild_SlotCounts(t *testing.T) {
	sections := []Section{
		line(0, 0, 100, 0, 7),
		line(0, 20, 100, 20, 3),
		line(0, 40, 100, 40, 0),
		line(0, 60, 100, 80, 12),
	}
	layout := Build(sections, nil, 5, 10, nil)

	perSection := map[int]int{}
	for id := range layout.Centers {
		perSection[id.Section]++
	}
	for i, sec := range sections {
		assert.Equal(t, sec.Capacity, perSection[i], "section %d centers", i)
		assert.Len(t, layout.Grid.Slots(i), sec.Capacity, "section %d row", i)
	}
	assert.Len(t, layout.Grid.Rows[1], 3+2)
}

func TestBuild_Centers(t *testing.T) {
	layout := Build([]Section{line(0, 0, 10, 20, 4)}, nil, 1, 1, nil)
	assert.Equal(t, geometry.Point{X: 0, Y: 0}, layout.Centers[SlotID{0, 0}])
	assert.Equal(t, geometry.Point{X: 2.5, Y: 5}, layout.Centers[SlotID{0, 1}])
	assert.Equal(t, geometry.Point{X: 7.5, Y: 15}, layout.Centers[SlotID{0, 3}])
	// the end point itself is never a slot
	assert.NotContains(t, layout.Centers, SlotID{0, 4})
}

func TestBuild_AisleRow(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2), line(0, 10, 10, 10, 2), line(0, 20, 10, 20, 1)}
	layout := Build(sections, nil, 1, 1, nil)

	want := [][]int{{0, 0}, {-1, 0, 0, -1}, {0}}
	if diff := cmp.Diff(want, layout.Grid.Rows); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_AisleRowOccupancy(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2), line(0, 10, 10, 10, 2), line(0, 20, 10, 20, 2)}

	t.Run("Test Slot Written At Its Index", func(t *testing.T) {
		det := SlotBox(geometry.Point{X: 5, Y: 10}, 1, 1)
		layout := Build(sections, []geometry.Box{det}, 1, 1, nil)
		require.Equal(t, MatchTable{0: {Slot: SlotID{1, 1}, IoU: 1}}, layout.Matches)

		occupied := ApplyMatches(layout.Grid, layout.Matches)
		assert.Equal(t, []int{-1, 1, 0, -1}, layout.Grid.Rows[1])
		assert.Equal(t, Occupied, layout.Grid.State(SlotID{1, 1}))
		assert.Equal(t, map[SlotID]struct{}{{1, 1}: {}}, occupied)
	})

	t.Run("Test First Slot Replaces Leading Aisle", func(t *testing.T) {
		det := SlotBox(geometry.Point{X: 0, Y: 10}, 1, 1)
		layout := Build(sections, []geometry.Box{det}, 1, 1, nil)
		occupied := ApplyMatches(layout.Grid, layout.Matches)

		assert.Equal(t, []int{1, 0, 0, -1}, layout.Grid.Rows[1])
		assert.Contains(t, occupied, SlotID{1, 0})
	})
}

func TestBuild_NegativeCapacity(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, -3), line(0, 10, 10, 10, -5), line(0, 20, 10, 20, 1)}
	var layout Layout
	require.NotPanics(t, func() {
		layout = Build(sections, []geometry.Box{SlotBox(geometry.Point{X: 0, Y: 20}, 1, 1)}, 1, 1, nil)
	})
	if diff := cmp.Diff([][]int{{}, {-1, -1}, {0}}, layout.Grid.Rows); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, layout.Centers, 1)
	assert.Equal(t, SlotID{2, 0}, layout.Matches[0].Slot)
}

func TestBuild_BelowThreshold(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2)}
	dets := []geometry.Box{
		{X1: 100, Y1: 100, X2: 101, Y2: 101},
		{X1: 0, Y1: -0.55, X2: 3, Y2: 0.55},
	}
	layout := Build(sections, dets, 1, 1, nil)
	iou, idx := MaxIoUForSlot(SlotBox(geometry.Point{}, 1, 1), dets)
	require.Equal(t, 1, idx)
	require.LessOrEqual(t, iou, MatchThreshold)
	assert.Empty(t, layout.Matches)
}

func TestBuild_BestSlotWins(t *testing.T) {
	// slots at x=0 and x=2 with effective size 11, both overlap any nearby box
	sections := []Section{line(0, 0, 4, 0, 2)}
	const size = 10.0

	t.Run("Test Later Slot Higher", func(t *testing.T) {
		det := geometry.Box{X1: -2, Y1: -5.5, X2: 9, Y2: 5.5}
		layout := Build(sections, []geometry.Box{det}, size, size, nil)
		require.Len(t, layout.Matches, 1)
		assert.Equal(t, SlotID{0, 1}, layout.Matches[0].Slot)
		assert.Greater(t, layout.Matches[0].IoU, MatchThreshold)
	})

	t.Run("Test Earlier Slot Higher", func(t *testing.T) {
		det := geometry.Box{X1: -7, Y1: -5.5, X2: 4, Y2: 5.5}
		layout := Build(sections, []geometry.Box{det}, size, size, nil)
		require.Len(t, layout.Matches, 1)
		assert.Equal(t, SlotID{0, 0}, layout.Matches[0].Slot)
	})
}

func TestMaxIoUForSlot(t *testing.T) {
	slot := geometry.Box{X1: 0, Y1: 0, X2: 2, Y2: 2}

	iou, idx := MaxIoUForSlot(slot, nil)
	assert.Equal(t, 0.0, iou)
	assert.Equal(t, -1, idx)

	dets := []geometry.Box{{X1: 1, Y1: 1, X2: 3, Y2: 3}, slot, slot}
	iou, idx = MaxIoUForSlot(slot, dets)
	assert.Equal(t, 1.0, iou)
	assert.Equal(t, 1, idx, "first of equal detections wins")
}

func TestReduceMatches(t *testing.T) {
	cands := []candidate{
		{detection: 0, match: Match{Slot: SlotID{0, 0}, IoU: 0.5}},
		{detection: 0, match: Match{Slot: SlotID{0, 1}, IoU: 0.5}},
		{detection: 1, match: Match{Slot: SlotID{0, 2}, IoU: 0.4}},
		{detection: 0, match: Match{Slot: SlotID{0, 3}, IoU: 0.7}},
		{detection: 1, match: Match{Slot: SlotID{0, 4}, IoU: 0.35}},
	}
	got := reduceMatches(cands)
	want := MatchTable{
		0: {Slot: SlotID{0, 3}, IoU: 0.7},
		1: {Slot: SlotID{0, 2}, IoU: 0.4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Angles(t *testing.T) {
	sections := []Section{line(0, 0, 10, 0, 2), line(0, 10, 10, 10, 2)}
	dets := []geometry.Box{
		SlotBox(geometry.Point{X: 5, Y: 0}, 1, 1),
		SlotBox(geometry.Point{X: 0, Y: 10}, 1, 1),
	}

	plain := Build(sections, dets, 1, 1, nil)
	zero := Build(sections, dets, 1, 1, []float64{0, 0})
	require.Len(t, zero.Matches, len(plain.Matches))
	for det, m := range plain.Matches {
		assert.Equal(t, m.Slot, zero.Matches[det].Slot)
		assert.InDelta(t, m.IoU, zero.Matches[det].IoU, 1e-9)
	}

	// square detections turned a quarter still cover their slot
	turned := Build(sections, dets, 1, 1, []float64{90, 90})
	require.Len(t, turned.Matches, 2)
	assert.Equal(t, SlotID{0, 1}, turned.Matches[0].Slot)
	assert.Equal(t, SlotID{1, 0}, turned.Matches[1].Slot)
	assert.InDelta(t, 1.0, turned.Matches[0].IoU, 1e-9)

	// detections without an angle take no part in matching
	short := Build(sections, dets, 1, 1, []float64{0})
	require.Len(t, short.Matches, 1)
	assert.Equal(t, SlotID{0, 1}, short.Matches[0].Slot)
	assert.NotContains(t, short.Matches, 1)
	assert.Empty(t, Build(sections, dets, 1, 1, []float64{}).Matches)

	// a long box at 45 degrees overlaps its slot far less than upright
	long := []geometry.Box{geometry.BoxAround(geometry.Point{X: 5, Y: 0}, 1.1, 3)}
	upright := Build(sections, long, 1, 1, nil)
	tilted := Build(sections, long, 1, 1, []float64{45})
	require.Contains(t, tilted.Matches, 0)
	assert.Less(t, tilted.Matches[0].IoU, upright.Matches[0].IoU)
}

func TestApplyMatches(t *testing.T) {
	g := &Grid{Rows: [][]int{{0, 1, 0}, {-1, 0, 0, -1}, {0, 0}}}
	m := MatchTable{
		3: {Slot: SlotID{0, 2}, IoU: 0.9},
		5: {Slot: SlotID{1, 1}, IoU: 0.8},
	}
	occupied := ApplyMatches(g, m)

	want := [][]int{{0, 1, 1}, {-1, 1, 0, -1}, {0, 0}}
	if diff := cmp.Diff(want, g.Rows); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[SlotID]struct{}{{0, 2}: {}, {1, 1}: {}}, occupied)

	t.Run("Test Empty Table", func(t *testing.T) {
		g := &Grid{Rows: [][]int{{0, 0}}}
		assert.Empty(t, ApplyMatches(g, nil))
		assert.Equal(t, [][]int{{0, 0}}, g.Rows)
	})

	t.Run("Test Contention Is Idempotent", func(t *testing.T) {
		// two detections resolved to one slot are not flagged
		g := &Grid{Rows: [][]int{{0, 0}}}
		m := MatchTable{
			0: {Slot: SlotID{0, 1}, IoU: 0.6},
			1: {Slot: SlotID{0, 1}, IoU: 0.9},
		}
		occupied := ApplyMatches(g, m)
		assert.Equal(t, [][]int{{0, 1}}, g.Rows)
		assert.Len(t, occupied, 1)
	})
}
