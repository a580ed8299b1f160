// Package grid lays parking slots out along section lines and resolves
// detected vehicle boxes to the slots they occupy.
package grid

import (
	"ParkSlotServer/geometry"
)

const (
	Aisle    = -1
	Empty    = 0
	Occupied = 1
)

const (
	// SlotTolerance scales the configured slot size before matching.
	SlotTolerance = 1.1
	// MatchThreshold is the IoU a slot/detection pair must exceed.
	MatchThreshold = 0.3
	// aisleRow is wrapped with Aisle markers on both ends. Matches are still
	// written at their slot index, so a match on slot 0 of this row replaces
	// the leading marker and the last slot's own cell is never written.
	aisleRow = 1
)

// Section is a line along which Capacity slots are spaced evenly.
type Section struct {
	Start    geometry.Point
	End      geometry.Point
	Capacity int
}

// SlotID addresses a slot by section index and slot index within it.
type SlotID struct {
	Section int
	Slot    int
}

// Grid holds one row of cell states per section. Row 1 carries an Aisle
// marker at both ends.
type Grid struct {
	Rows [][]int
}

// State reads the cell at (section, slot). Cells are addressed literally, so
// in the aisle row slot 0 is the leading Aisle marker.
func (g *Grid) State(id SlotID) int {
	return g.Rows[id.Section][id.Slot]
}

// Set writes the cell at (section, slot), addressed like State.
func (g *Grid) Set(id SlotID, state int) {
	g.Rows[id.Section][id.Slot] = state
}

// Slots returns the slot states of a section without Aisle markers.
func (g *Grid) Slots(section int) []int {
	row := g.Rows[section]
	if section == aisleRow && len(row) >= 2 {
		return row[1 : len(row)-1]
	}
	return row
}

// Match is the slot a detection resolved to and its IoU.
type Match struct {
	Slot SlotID
	IoU  float64
}

// MatchTable maps a detection index to the one slot it occupies.
type MatchTable map[int]Match

// Layout is the result of Build.
type Layout struct {
	Grid    *Grid
	Centers map[SlotID]geometry.Point
	Matches MatchTable
}
