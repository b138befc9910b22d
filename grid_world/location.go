package grid_world

import (
	"errors"
	"fmt"
)

// Location is a row/column coordinate on the grid. Row 0 is the top row when printed.
type Location struct {
	Row, Col int
}

func (loc Location) String() string {
	return fmt.Sprintf("(%d,%d)", loc.Row, loc.Col)
}

// Move returns the location one cell away in the passed direction. No bounds checking.
func (loc Location) Move(dir Direction) Location {
	dRow, dCol := dir.Delta()
	return Location{Row: loc.Row + dRow, Col: loc.Col + dCol}
}

// Neighbors returns the four axis-aligned neighbors, indexed by Direction.
// Callers filter out-of-bounds neighbors themselves.
func (loc Location) Neighbors() (neighbors [NumDirections]Location) {
	for _, dir := range Directions {
		neighbors[dir] = loc.Move(dir)
	}
	return
}

// Direction is one of the four agent actions. Its ordinal indexes the per-cell
// weight and trace arrays, so the order below must not change.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// NumDirections is the size of the action set. There is no 'stay' action.
const NumDirections = 4

// Directions in ordinal order.
var Directions = [NumDirections]Direction{Up, Down, Left, Right}

// ErrUnsupportedDirection is the panic value (wrapped) for a direction outside the closed set.
// It indicates a programming defect, not a runtime condition.
var ErrUnsupportedDirection = errors.New("unsupported direction")

// DirectionAt returns the direction with the passed ordinal, panicking if the index is out of [0,4).
func DirectionAt(index int) Direction {
	if index < 0 || index >= NumDirections {
		panic(fmt.Errorf("%w: index %d", ErrUnsupportedDirection, index))
	}
	return Directions[index]
}

// Delta returns the unit row/column displacement of the direction.
func (dir Direction) Delta() (dRow, dCol int) {
	switch dir {
	case Up:
		return -1, 0
	case Down:
		return 1, 0
	case Left:
		return 0, -1
	case Right:
		return 0, 1
	default:
		panic(fmt.Errorf("%w: %d", ErrUnsupportedDirection, int(dir)))
	}
}

func (dir Direction) String() string {
	switch dir {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	}
	return fmt.Sprintf("Direction(%d)", int(dir))
}
