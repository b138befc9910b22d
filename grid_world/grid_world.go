package grid_world

import (
	"errors"
	"fmt"
	"sort"
)

// Rand is the randomness provider for grid construction, placement and the learning policy.
// Passing it in explicitly allows deterministic seeding; *golang.org/x/exp/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Layout glyphs accepted by Convert.
const (
	FREE     = '.'
	OBSTACLE = '#'
	PLAYER   = 'X'
	GOAL     = 'O'
)

const (
	// DefaultObstaclePercent is the chance (in percent) that any cell becomes an obstacle.
	DefaultObstaclePercent = 25
	// GoalReward is the reward held by the goal cell; all other cells hold zero.
	GoalReward = 1.0
)

var (
	ErrInvalidDimensions      = errors.New("cannot have empty rows or columns")
	ErrInvalidObstaclePercent = errors.New("obstacle percent is not between 0-100")
	// ErrInfeasiblePlacement is returned when the grid has too few open, untrapped cells
	// to hold both the player and the goal.
	ErrInfeasiblePlacement = errors.New("not enough valid cells to place player and goal")
	ErrInvalidLayout       = errors.New("invalid grid layout")
)

// DebugLayout is a small fixed board for development.
var DebugLayout = []string{
	".....",
	".#...",
	"...#.",
	"#....",
	"...#.",
}

// Options describe a grid at construction time.
type Options struct {
	Rows, Cols int
	// Obstacles enables obstacle sampling.
	Obstacles bool
	// ObstaclePercent is the per-cell inclusion chance in [0,100].
	ObstaclePercent int
}

// Validate checks the dimension and obstacle parameters.
func (opts Options) Validate() error {
	if opts.Rows < 1 || opts.Cols < 1 {
		return fmt.Errorf("%w: %d x %d", ErrInvalidDimensions, opts.Rows, opts.Cols)
	}
	if opts.ObstaclePercent < 0 || opts.ObstaclePercent > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidObstaclePercent, opts.ObstaclePercent)
	}
	return nil
}

// Grid owns the board of Cells, the fixed obstacle set, and the player and goal positions.
// Cells are indexed [row][col]. A Grid is not safe for concurrent use.
type Grid struct {
	cells     [][]Cell
	obstacles map[Location]struct{}
	// obstacles in row-major order, for stable snapshots
	obstacleList     []Location
	obstaclesEnabled bool
	player, goal     Location
	hasPlayer        bool
	hasGoal          bool
	// number of cells that are neither obstacles nor trapped
	placeable int
	rng       Rand
}

// New builds a grid per the passed options: random initial weights, sampled obstacles
// (if enabled), then a randomly placed player followed by the goal.
func New(opts Options, rng Rand) (*Grid, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	grid := newGrid(opts.Rows, opts.Cols, rng)
	grid.obstaclesEnabled = opts.Obstacles
	if opts.Obstacles {
		for row := 0; row < opts.Rows; row++ {
			for col := 0; col < opts.Cols; col++ {
				if rng.Intn(100) < opts.ObstaclePercent {
					grid.addObstacle(Location{Row: row, Col: col})
				}
			}
		}
	}

	if err := grid.init(); err != nil {
		return nil, err
	}
	if err := grid.PlacePlayer(); err != nil {
		return nil, err
	}
	if err := grid.PlaceGoal(); err != nil {
		return nil, err
	}
	return grid, nil
}

// Convert builds a grid from a text layout, one string per row, using the layout glyphs:
// FREE, OBSTACLE, and optionally one PLAYER and one GOAL. A missing player or goal is
// placed randomly. Weights are random, as with New.
func Convert(layout []string, rng Rand) (*Grid, error) {
	if len(layout) == 0 || len(layout[0]) == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrInvalidDimensions)
	}

	rows, cols := len(layout), len(layout[0])
	grid := newGrid(rows, cols, rng)
	var player, goal *Location
	for row, line := range layout {
		if len(line) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, expected %d", ErrInvalidLayout, row, len(line), cols)
		}
		for col, glyph := range line {
			loc := Location{Row: row, Col: col}
			switch glyph {
			case FREE:
			case OBSTACLE:
				grid.obstaclesEnabled = true
				grid.addObstacle(loc)
			case PLAYER:
				player = &loc
			case GOAL:
				goal = &loc
			default:
				return nil, fmt.Errorf("%w: unknown glyph %q at %v", ErrInvalidLayout, glyph, loc)
			}
		}
	}

	if err := grid.init(); err != nil {
		return nil, err
	}

	var err error
	if player != nil {
		err = grid.setPlayer(*player)
	} else {
		err = grid.PlacePlayer()
	}
	if err != nil {
		return nil, err
	}

	if goal != nil {
		err = grid.setGoal(*goal)
	} else {
		err = grid.PlaceGoal()
	}
	if err != nil {
		return nil, err
	}
	return grid, nil
}

func newGrid(rows, cols int, rng Rand) *Grid {
	grid := &Grid{
		cells:     make([][]Cell, rows),
		obstacles: map[Location]struct{}{},
		rng:       rng,
	}
	for row := range grid.cells {
		grid.cells[row] = make([]Cell, cols)
		for col := range grid.cells[row] {
			cell := &grid.cells[row][col]
			for k := range cell.Weights {
				cell.Weights[k] = rng.Float64()
			}
		}
	}
	return grid
}

func (grid *Grid) addObstacle(loc Location) {
	grid.obstacles[loc] = struct{}{}
	grid.obstacleList = append(grid.obstacleList, loc)
}

// init counts the placeable cells once the obstacle set is final, failing fast if the
// player and goal cannot both be placed.
func (grid *Grid) init() error {
	sort.Slice(grid.obstacleList, func(i, j int) bool {
		a, b := grid.obstacleList[i], grid.obstacleList[j]
		return a.Row < b.Row || (a.Row == b.Row && a.Col < b.Col)
	})

	grid.placeable = 0
	grid.Visit(func(loc Location, _ *Cell) {
		if !grid.IsOnObstacle(loc) && !grid.IsTrapped(loc) {
			grid.placeable++
		}
	})
	if grid.placeable < 2 {
		return fmt.Errorf("%w: %d x %d grid has %d", ErrInfeasiblePlacement, grid.Rows(), grid.Cols(), grid.placeable)
	}
	return nil
}

func (grid *Grid) Rows() int {
	return len(grid.cells)
}

func (grid *Grid) Cols() int {
	return len(grid.cells[0])
}

func (grid *Grid) Player() Location {
	return grid.player
}

func (grid *Grid) Goal() Location {
	return grid.goal
}

// ObstaclesEnabled reports whether the grid was built with obstacles.
func (grid *Grid) ObstaclesEnabled() bool {
	return grid.obstaclesEnabled
}

// Obstacles returns a copy of the obstacle set in row-major order.
func (grid *Grid) Obstacles() []Location {
	return append([]Location(nil), grid.obstacleList...)
}

// IsInBounds is true iff loc lies within [0,rows) x [0,cols).
func (grid *Grid) IsInBounds(loc Location) bool {
	return loc.Row >= 0 && loc.Row < grid.Rows() &&
		loc.Col >= 0 && loc.Col < grid.Cols()
}

func (grid *Grid) IsOnObstacle(loc Location) bool {
	_, ok := grid.obstacles[loc]
	return ok
}

// IsTrapped is true iff every in-bounds neighbor of loc is an obstacle. A location with
// no in-bounds neighbors (a 1x1 grid) is trivially trapped.
func (grid *Grid) IsTrapped(loc Location) bool {
	for _, neighbor := range loc.Neighbors() {
		if grid.IsInBounds(neighbor) && !grid.IsOnObstacle(neighbor) {
			return false
		}
	}
	return true
}

// Neighbor returns loc shifted one cell in the passed direction, without bounds checking.
func (grid *Grid) Neighbor(loc Location, dir Direction) Location {
	return loc.Move(dir)
}

// Cell returns the cell at loc, which must be in bounds. The pointer must not be retained
// beyond the caller's current operation.
func (grid *Grid) Cell(loc Location) *Cell {
	return &grid.cells[loc.Row][loc.Col]
}

// Visit calls fn for every cell in row-major order.
func (grid *Grid) Visit(fn func(loc Location, cell *Cell)) {
	for row := range grid.cells {
		for col := range grid.cells[row] {
			fn(Location{Row: row, Col: col}, &grid.cells[row][col])
		}
	}
}

// ClearEligibility zeroes every cell's eligibility traces.
func (grid *Grid) ClearEligibility() {
	grid.Visit(func(_ Location, cell *Cell) { cell.ClearEligibility() })
}

func (grid *Grid) isPlaceable(loc Location) bool {
	return grid.IsInBounds(loc) &&
		!(grid.hasPlayer && loc == grid.player) &&
		!(grid.hasGoal && loc == grid.goal) &&
		!grid.IsOnObstacle(loc) &&
		!grid.IsTrapped(loc)
}

// available returns the number of cells SampleValidPosition can currently return.
func (grid *Grid) available() int {
	n := grid.placeable
	if grid.hasPlayer && grid.IsInBounds(grid.player) && !grid.IsOnObstacle(grid.player) && !grid.IsTrapped(grid.player) {
		n--
	}
	if grid.hasGoal && !(grid.hasPlayer && grid.player == grid.goal) {
		n--
	}
	return n
}

// SampleValidPosition draws uniformly random locations until one is in bounds and is not
// the player, the goal, an obstacle, or trapped. If no such location exists it returns
// ErrInfeasiblePlacement instead of looping.
func (grid *Grid) SampleValidPosition() (Location, error) {
	if grid.available() < 1 {
		return Location{}, fmt.Errorf("%w: no free cell besides player %v and goal %v",
			ErrInfeasiblePlacement, grid.player, grid.goal)
	}

	for {
		loc := Location{
			Row: grid.rng.Intn(grid.Rows()),
			Col: grid.rng.Intn(grid.Cols()),
		}
		if grid.isPlaceable(loc) {
			return loc, nil
		}
	}
}

// PlacePlayer moves the player to a randomly sampled valid position.
func (grid *Grid) PlacePlayer() error {
	loc, err := grid.SampleValidPosition()
	if err != nil {
		return err
	}
	grid.player = loc
	grid.hasPlayer = true
	return nil
}

// PlaceGoal moves the goal to a randomly sampled valid position, whose cell reward becomes
// GoalReward; the cell's weights and traces are kept. The previous goal cell, if any,
// goes back to zero reward.
func (grid *Grid) PlaceGoal() error {
	loc, err := grid.SampleValidPosition()
	if err != nil {
		return err
	}
	grid.assignGoal(loc)
	return nil
}

// MovePlayer sets the player position unconditionally, including out of bounds or onto an
// obstacle. The learning step uses this to detect episode ends.
func (grid *Grid) MovePlayer(loc Location) {
	grid.player = loc
	grid.hasPlayer = true
}

func (grid *Grid) setPlayer(loc Location) error {
	if !grid.isPlaceable(loc) {
		return fmt.Errorf("%w: player at %v is not a valid position", ErrInvalidLayout, loc)
	}
	grid.MovePlayer(loc)
	return nil
}

func (grid *Grid) setGoal(loc Location) error {
	if !grid.isPlaceable(loc) {
		return fmt.Errorf("%w: goal at %v is not a valid position", ErrInvalidLayout, loc)
	}
	grid.assignGoal(loc)
	return nil
}

func (grid *Grid) assignGoal(loc Location) {
	if grid.hasGoal {
		grid.Cell(grid.goal).Reward = 0
	}
	grid.goal = loc
	grid.hasGoal = true
	grid.Cell(loc).Reward = GoalReward
}

// Snapshot is a read-only copy of the grid state needed for presentation.
type Snapshot struct {
	Rows, Cols   int
	Obstacles    []Location
	Player, Goal Location
	// Best is the direction of maximum weight per cell, [row][col].
	Best [][]Direction
	// MaxWeights is the maximum weight per cell, [row][col].
	MaxWeights [][]float64
}

// Snapshot copies out the current board state.
func (grid *Grid) Snapshot() Snapshot {
	snap := Snapshot{
		Rows:       grid.Rows(),
		Cols:       grid.Cols(),
		Obstacles:  grid.Obstacles(),
		Player:     grid.player,
		Goal:       grid.goal,
		Best:       make([][]Direction, grid.Rows()),
		MaxWeights: make([][]float64, grid.Rows()),
	}
	for row := range grid.cells {
		snap.Best[row] = make([]Direction, grid.Cols())
		snap.MaxWeights[row] = make([]float64, grid.Cols())
		for col := range grid.cells[row] {
			cell := &grid.cells[row][col]
			snap.Best[row][col] = cell.Best()
			snap.MaxWeights[row][col] = cell.MaxWeight()
		}
	}
	return snap
}

// IsObstacle reports whether loc is in the snapshot's obstacle set.
func (snap *Snapshot) IsObstacle(loc Location) bool {
	i := sort.Search(len(snap.Obstacles), func(i int) bool {
		ob := snap.Obstacles[i]
		return ob.Row > loc.Row || (ob.Row == loc.Row && ob.Col >= loc.Col)
	})
	return i < len(snap.Obstacles) && snap.Obstacles[i] == loc
}
