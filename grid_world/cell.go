package grid_world

import (
	"gonum.org/v1/gonum/floats"
)

// Cell holds the learned state of one grid position: a weight (action value) and
// an eligibility trace per Direction, plus the reward for stepping into the cell.
// Both arrays are indexed by Direction ordinal.
type Cell struct {
	Weights     [NumDirections]float64
	Eligibility [NumDirections]float64
	Reward      float64
}

// Best returns the direction of maximum weight. Ties go to the lowest ordinal.
// The best direction is derived on demand rather than cached, since every step
// rewrites every cell's weights.
func (c *Cell) Best() Direction {
	return DirectionAt(floats.MaxIdx(c.Weights[:]))
}

// MaxWeight returns the maximum action value of the cell.
func (c *Cell) MaxWeight() float64 {
	return floats.Max(c.Weights[:])
}

// ClearEligibility zeroes the cell's traces.
func (c *Cell) ClearEligibility() {
	c.Eligibility = [NumDirections]float64{}
}
