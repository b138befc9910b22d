package reinforcement

import (
	"errors"
	"testing"

	"gridworld/grid_world"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/exp/rand"
)

// epsilon tolerates fused multiply-add on platforms that use it.
const epsilon = 1e-12

// scriptedRand always returns the same float, and defers Intn to a function.
type scriptedRand struct {
	float float64
	intn  func(n int) int
}

func (sr *scriptedRand) Float64() float64 { return sr.float }
func (sr *scriptedRand) Intn(n int) int   { return sr.intn(n) }

// countingRand counts Intn calls per argument.
type countingRand struct {
	*rand.Rand
	calls map[int]int
}

func (cr *countingRand) Intn(n int) int {
	cr.calls[n]++
	return cr.Rand.Intn(n)
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// exploit never explores; placement draws come from a seeded source.
func exploit(seed uint64) *scriptedRand {
	src := newRand(seed)
	return &scriptedRand{float: 0.999, intn: src.Intn}
}

func mustConvert(layout []string) *grid_world.Grid {
	grid, err := grid_world.Convert(layout, newRand(1))
	So(err, ShouldBeNil)
	return grid
}

func setAllWeights(grid *grid_world.Grid, val float64) {
	grid.Visit(func(_ grid_world.Location, cell *grid_world.Cell) {
		cell.Weights = [grid_world.NumDirections]float64{val, val, val, val}
	})
}

func copyCells(grid *grid_world.Grid) map[grid_world.Location]grid_world.Cell {
	cells := map[grid_world.Location]grid_world.Cell{}
	grid.Visit(func(loc grid_world.Location, cell *grid_world.Cell) {
		cells[loc] = *cell
	})
	return cells
}

func TestStepUpdate(t *testing.T) {
	Convey("Given a 3 x 3 grid with known weights and traces", t, func() {
		grid := mustConvert([]string{
			"...",
			".X.",
			"..O",
		})
		setAllWeights(grid, 0.1)
		center := grid_world.Location{Row: 1, Col: 1}
		grid.Cell(center).Weights = [grid_world.NumDirections]float64{0, 0, 0, 0.5}
		grid.Cell(center).Eligibility = [grid_world.NumDirections]float64{0.3, 0, 0, 0.1}
		grid.Cell(grid_world.Location{Row: 0, Col: 0}).Eligibility = [grid_world.NumDirections]float64{0.2, 0.4, 0, 0}

		params := Params{ExplorationRate: 0.5, Alpha: 0.1, Lambda: 0.8, Decrement: 0.01, Terminate: 0.05}
		engine := NewEngine(grid, params, exploit(3))
		before := copyCells(grid)

		Convey("When the greedy action moves the player inside the board", func() {
			ended := engine.Step()

			So(ended, ShouldBeFalse)
			So(grid.Player(), ShouldResemble, grid_world.Location{Row: 1, Col: 2})
			So(engine.Rate(), ShouldEqual, 0.5)

			Convey("Every slot decays by rate*lambda, and the acted slot is incremented first", func() {
				// variables, not constants, so the arithmetic rounds as the engine's does
				rate, alpha, lambda, successorMax, bestValue := 0.5, 0.1, 0.8, 0.1, 0.5
				delta := 0.0 + rate*successorMax - bestValue
				alphaDelta := alpha * delta
				traceDecay := rate * lambda

				grid.Visit(func(loc grid_world.Location, cell *grid_world.Cell) {
					old := before[loc]
					for k := 0; k < grid_world.NumDirections; k++ {
						trace := old.Eligibility[k]
						if loc == center && grid_world.Direction(k) == grid_world.Right {
							trace += 1
						}
						So(cell.Eligibility[k], ShouldEqual, traceDecay*trace)
						So(cell.Weights[k], ShouldAlmostEqual, old.Weights[k]+alphaDelta*trace, epsilon)
					}
				})
			})
		})
	})
}

func TestGreedyOnly(t *testing.T) {
	Convey("Given a 3 x 3 grid with exploration fixed at zero", t, func() {
		rng := &countingRand{Rand: newRand(9), calls: map[int]int{}}
		grid, err := grid_world.New(grid_world.Options{Rows: 3, Cols: 3}, rng)
		So(err, ShouldBeNil)
		engine := NewEngine(grid, Params{ExplorationRate: 0, Alpha: 0.1, Lambda: 0.5, Decrement: 0.01, Terminate: 0.05}, rng)

		Convey("Step always takes the argmax direction", func() {
			for i := 0; i < 500; i++ {
				player := grid.Player()
				expected := grid.Neighbor(player, grid.Cell(player).Best())
				if !engine.Step() {
					So(grid.Player(), ShouldResemble, expected)
				}
			}
			So(rng.calls[grid_world.NumDirections], ShouldEqual, 0)
		})
	})
}

func TestOutOfBounds(t *testing.T) {
	Convey("Given a player in the top-left corner whose best direction is Up", t, func() {
		grid := mustConvert([]string{
			"X..",
			"...",
			"..O",
		})
		corner := grid_world.Location{Row: 0, Col: 0}
		grid.Cell(corner).Weights = [grid_world.NumDirections]float64{0.6, 0.1, 0.2, 0.3}
		before := copyCells(grid)
		goal := grid.Goal()

		params := Params{ExplorationRate: 0, Alpha: 0.1, Lambda: 0.5, Decrement: 0.01, Terminate: 0.05}
		engine := NewEngine(grid, params, exploit(5))

		Convey("The step is penalized, bootstraps from zero, and ends the episode", func() {
			ended := engine.Step()
			So(ended, ShouldBeTrue)

			reward, rate, alpha, bestValue := -1.0, 0.0, 0.1, 0.6
			delta := reward + rate*0 - bestValue
			So(grid.Cell(corner).Weights[grid_world.Up], ShouldAlmostEqual, bestValue+alpha*delta*1, epsilon)
			So(grid.Cell(corner).Weights[grid_world.Down], ShouldEqual, 0.1)

			Convey("Only the player, the traces, the rate and the acted weight change", func() {
				decrement := 0.01
				So(engine.Rate(), ShouldEqual, rate-decrement)
				So(grid.Goal(), ShouldResemble, goal)
				So(grid.IsInBounds(grid.Player()), ShouldBeTrue)
				So(grid.Player(), ShouldNotResemble, goal)

				grid.Visit(func(loc grid_world.Location, cell *grid_world.Cell) {
					So(cell.Eligibility, ShouldResemble, [grid_world.NumDirections]float64{})
					So(cell.Reward, ShouldEqual, before[loc].Reward)
					if loc != corner {
						So(cell.Weights, ShouldResemble, before[loc].Weights)
					}
				})
			})
		})
	})
}

func TestEpisodeBoundary(t *testing.T) {
	Convey("Given a player next to the goal", t, func() {
		grid := mustConvert([]string{
			"XO.",
			"...",
		})
		start := grid_world.Location{Row: 0, Col: 0}
		grid.Cell(start).Weights = [grid_world.NumDirections]float64{0, 0, 0, 0.4}
		goalMax := grid.Cell(grid.Goal()).MaxWeight()
		params := Params{ExplorationRate: 0.3, Alpha: 0.1, Lambda: 0.5, Decrement: 0.1, Terminate: 0.05}
		engine := NewEngine(grid, params, exploit(2))

		Convey("Reaching the goal uses its reward, clears traces, and decrements the rate once", func() {
			So(engine.Step(), ShouldBeTrue)

			reward, rate, alpha, bestValue, decrement := 1.0, 0.3, 0.1, 0.4, 0.1
			delta := reward + rate*goalMax - bestValue
			So(grid.Cell(start).Weights[grid_world.Right], ShouldAlmostEqual, bestValue+alpha*delta*1, epsilon)
			So(engine.Rate(), ShouldEqual, rate-decrement)
			So(grid.Player(), ShouldNotResemble, grid.Goal())
			grid.Visit(func(_ grid_world.Location, cell *grid_world.Cell) {
				So(cell.Eligibility, ShouldResemble, [grid_world.NumDirections]float64{})
			})
		})
	})

	Convey("Given a player next to an obstacle", t, func() {
		grid := mustConvert([]string{
			"X#.",
			"..O",
		})
		grid.Cell(grid_world.Location{Row: 0, Col: 0}).Weights = [grid_world.NumDirections]float64{0, 0, 0, 0.4}
		engine := NewEngine(grid, Params{ExplorationRate: 0.3, Alpha: 0.1, Lambda: 0.5, Decrement: 0.1, Terminate: 0.05}, exploit(2))

		Convey("Stepping onto the obstacle ends the episode", func() {
			So(engine.Step(), ShouldBeTrue)
			rate, decrement := 0.3, 0.1
			So(grid.IsOnObstacle(grid.Player()), ShouldBeFalse)
			So(engine.Rate(), ShouldEqual, rate-decrement)
		})
	})

	Convey("Given an exploring engine whose random source yields an unknown direction", t, func() {
		grid := mustConvert([]string{"X..", "..O"})
		engine := NewEngine(grid, Params{ExplorationRate: 0.9, Alpha: 0.1, Lambda: 0.5, Decrement: 0.1, Terminate: 0.05},
			&scriptedRand{float: 0, intn: func(n int) int { return n + 3 }})

		Convey("Step panics rather than continuing with corrupt state", func() {
			So(func() { engine.Step() }, ShouldPanic)
		})
	})
}

func TestDone(t *testing.T) {
	Convey("Termination is strict: the engine stops at the threshold", t, func() {
		grid := mustConvert([]string{"X..", "..O"})
		engine := NewEngine(grid, Params{ExplorationRate: 0.05, Decrement: 0.01, Terminate: 0.05}, exploit(1))
		So(engine.Done(), ShouldBeTrue)

		engine = NewEngine(grid, Params{ExplorationRate: 0.0501, Decrement: 0.01, Terminate: 0.05}, exploit(1))
		So(engine.Done(), ShouldBeFalse)
	})
}

func TestParamsValidate(t *testing.T) {
	Convey("Params that cannot terminate are rejected", t, func() {
		So(errors.Is(Params{ExplorationRate: 0.9, Decrement: 0, Terminate: 0.05}.Validate(), ErrInvalidConfig), ShouldBeTrue)
		So(errors.Is(Params{ExplorationRate: 0.9, Decrement: 0.1, Terminate: 0}.Validate(), ErrInvalidConfig), ShouldBeTrue)
		So(errors.Is(Params{ExplorationRate: 1.5, Decrement: 0.1, Terminate: 0.05}.Validate(), ErrInvalidConfig), ShouldBeTrue)
		So(Params{ExplorationRate: 0.9, Decrement: 0.1, Terminate: 0.05}.Validate(), ShouldBeNil)
	})
}
