package grid

import (
	"ParkSlotServer/geometry"
)

type candidate struct {
	detection int
	match     Match
}

// MaxIoUForSlot returns the best IoU of slot against dets and the index of
// the detection reaching it, -1 when nothing overlaps. The first detection
// wins ties.
func MaxIoUForSlot(slot geometry.Box, dets []geometry.Box) (float64, int) {
	return maxOver(len(dets), func(i int) float64 { return geometry.IoU(slot, dets[i]) })
}

func maxOver(n int, iou func(int) float64) (float64, int) {
	best, idx := 0.0, -1
	for i := 0; i < n; i++ {
		if v := iou(i); v > best {
			best, idx = v, i
		}
	}
	return best, idx
}

// SlotBox is the matching box of a slot centered at c.
func SlotBox(c geometry.Point, slotWidth, slotLength float64) geometry.Box {
	return geometry.BoxAround(c, slotWidth*SlotTolerance, slotLength*SlotTolerance)
}

// Build lays out every section's slots, computes slot centers and resolves
// each detection to its best slot. When angles is non-nil it runs parallel
// to dets and every detection is rotated before matching; detections past
// the end of angles are left unmatched. A non-positive capacity yields an
// empty section.
func Build(sections []Section, dets []geometry.Box, slotWidth, slotLength float64, angles []float64) Layout {
	n, score := scorer(dets, angles)

	g := &Grid{Rows: make([][]int, 0, len(sections))}
	centers := make(map[SlotID]geometry.Point)
	var cands []candidate

	for si, sec := range sections {
		row := make([]int, 0, max(sec.Capacity, 0)+2)
		if si == aisleRow {
			row = append(row, Aisle)
		}
		for slot := 0; slot < sec.Capacity; slot++ {
			id := SlotID{Section: si, Slot: slot}
			c := geometry.Lerp(sec.Start, sec.End, float64(slot)/float64(sec.Capacity))
			centers[id] = c

			box := SlotBox(c, slotWidth, slotLength)
			iou, det := maxOver(n, func(i int) float64 { return score(box, i) })
			if iou > MatchThreshold {
				cands = append(cands, candidate{detection: det, match: Match{Slot: id, IoU: iou}})
			}
			row = append(row, Empty)
		}
		if si == aisleRow {
			row = append(row, Aisle)
		}
		g.Rows = append(g.Rows, row)
	}

	return Layout{Grid: g, Centers: centers, Matches: reduceMatches(cands)}
}

// reduceMatches keeps the highest-IoU slot per detection. Candidates arrive
// in scan order and a later slot only replaces on a strictly higher IoU.
func reduceMatches(cands []candidate) MatchTable {
	out := make(MatchTable, len(cands))
	for _, c := range cands {
		if cur, ok := out[c.detection]; ok && cur.IoU >= c.match.IoU {
			continue
		}
		out[c.detection] = c.match
	}
	return out
}

// scorer returns how many detections take part in matching and the IoU of a
// slot box against detection i.
func scorer(dets []geometry.Box, angles []float64) (int, func(geometry.Box, int) float64) {
	if angles == nil {
		return len(dets), func(slot geometry.Box, i int) float64 { return geometry.IoU(slot, dets[i]) }
	}
	n := min(len(dets), len(angles))
	quads := make([]geometry.Quad, n)
	for i := range quads {
		quads[i] = geometry.RotateBox(dets[i], angles[i])
	}
	return n, func(slot geometry.Box, i int) float64 { return geometry.QuadIoU(slot, quads[i]) }
}

// ApplyMatches sets the cell at (section, slot) of every match to Occupied
// and returns the set of occupied slots. g is modified in place. Two
// detections on one slot leave it occupied once.
func ApplyMatches(g *Grid, m MatchTable) map[SlotID]struct{} {
	occupied := make(map[SlotID]struct{}, len(m))
	for _, match := range m {
		g.Set(match.Slot, Occupied)
		occupied[match.Slot] = struct{}{}
	}
	return occupied
}
