package console

import (
	"fmt"
	"strings"

	"gridworld/grid_world"
)

// Glyph is the closed set of characters a board cell renders as.
type Glyph int

const (
	GlyphObstacle Glyph = iota
	GlyphPlayer
	GlyphGoal
	GlyphUp
	GlyphDown
	GlyphLeft
	GlyphRight
)

var glyphRunes = [...]rune{
	GlyphObstacle: '#',
	GlyphPlayer:   'X',
	GlyphGoal:     'O',
	GlyphUp:       'U',
	GlyphDown:     'D',
	GlyphLeft:     'L',
	GlyphRight:    'R',
}

// Rune returns the glyph's character, panicking on a value outside the closed set.
func (g Glyph) Rune() rune {
	if g < 0 || int(g) >= len(glyphRunes) {
		panic(fmt.Sprintf("unknown glyph %d", int(g)))
	}
	return glyphRunes[g]
}

func (g Glyph) String() string {
	return string(g.Rune())
}

// DirectionGlyph maps a best-direction to its arrow glyph.
func DirectionGlyph(dir grid_world.Direction) Glyph {
	switch dir {
	case grid_world.Up:
		return GlyphUp
	case grid_world.Down:
		return GlyphDown
	case grid_world.Left:
		return GlyphLeft
	case grid_world.Right:
		return GlyphRight
	}
	panic(fmt.Errorf("%w: %d", grid_world.ErrUnsupportedDirection, int(dir)))
}

// CellGlyph returns the glyph of a single cell. The goal is drawn over the player, and
// the player over an obstacle.
func CellGlyph(snap *grid_world.Snapshot, loc grid_world.Location) Glyph {
	switch {
	case loc == snap.Goal:
		return GlyphGoal
	case loc == snap.Player:
		return GlyphPlayer
	case snap.IsObstacle(loc):
		return GlyphObstacle
	}
	return DirectionGlyph(snap.Best[loc.Row][loc.Col])
}

// Glyphs maps every cell of the snapshot to its glyph, [row][col].
func Glyphs(snap *grid_world.Snapshot) [][]Glyph {
	glyphs := make([][]Glyph, snap.Rows)
	for row := range glyphs {
		glyphs[row] = make([]Glyph, snap.Cols)
		for col := range glyphs[row] {
			glyphs[row][col] = CellGlyph(snap, grid_world.Location{Row: row, Col: col})
		}
	}
	return glyphs
}

// RenderBoard draws the board one row per line, each glyph preceded by a space.
func RenderBoard(snap *grid_world.Snapshot) string {
	var sb strings.Builder
	for row, glyphs := range Glyphs(snap) {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for _, glyph := range glyphs {
			sb.WriteByte(' ')
			sb.WriteRune(glyph.Rune())
		}
	}
	return sb.String()
}
