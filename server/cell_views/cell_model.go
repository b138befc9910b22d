// cell_views contains views derived from the Board view-model.
package cell_views

import (
	"gridworld/console"
	"gridworld/grid_world"
	"gridworld/reinforcement"
)

// Cell is one board cell as displayed. As a rule of thumb, Cell fields should be
// immediately usable as view parameters.
type Cell struct {
	Row, Col int
	Glyph    string
	Max      float64
	Fill     string
}

// Board is a run's checkpoint, flattened for templates: [row][col] cells and the
// run's scalar progress.
type Board struct {
	ID                string
	Rows, Cols        int
	Obstacles         bool
	Episodes, Actions int64
	Rate              float64
	Cells             [][]Cell
}

// Convert transforms a checkpoint into a Board for consumption by the cell views.
func Convert(cp reinforcement.Checkpoint) Board {
	snap := &cp.Board
	board := Board{
		ID:        cp.ID,
		Rows:      snap.Rows,
		Cols:      snap.Cols,
		Obstacles: cp.ObstaclesEnabled,
		Episodes:  cp.Episodes,
		Actions:   cp.Actions,
		Rate:      cp.Rate,
		Cells:     make([][]Cell, snap.Rows),
	}
	for row := range board.Cells {
		board.Cells[row] = make([]Cell, snap.Cols)
		for col := range board.Cells[row] {
			glyph := console.CellGlyph(snap, grid_world.Location{Row: row, Col: col})
			board.Cells[row][col] = Cell{
				Row:   row,
				Col:   col,
				Glyph: glyph.String(),
				Max:   snap.MaxWeights[row][col],
				Fill:  getFill(glyph),
			}
		}
	}
	return board
}

// ConvertAll converts several checkpoints, in order.
func ConvertAll(cps []reinforcement.Checkpoint) []Board {
	boards := make([]Board, 0, len(cps))
	for _, cp := range cps {
		boards = append(boards, Convert(cp))
	}
	return boards
}

func getFill(glyph console.Glyph) (fill string) {
	switch glyph {
	case console.GlyphObstacle:
		fill = "lightgreen"
	case console.GlyphPlayer:
		fill = "lightblue"
	case console.GlyphGoal:
		fill = "lightyellow"
	default:
		fill = "white"
	}
	return
}
