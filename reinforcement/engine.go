package reinforcement

import (
	"errors"
	"fmt"

	. "gridworld/grid_world"
)

// OutOfBoundsReward is the reward for attempting to step off the board.
const OutOfBoundsReward = -1.0

// ErrInvariant wraps panics raised by programming defects during a run: an unsupported
// direction, or a placement failure the construction-time precheck should have ruled out.
var ErrInvariant = errors.New("invariant violation")

// Params are the learning parameters of one run.
type Params struct {
	// ExplorationRate is the initial explore probability. It is also the discount
	// factor when bootstrapping, and decays linearly by Decrement every episode.
	ExplorationRate float64
	// Alpha is the learning rate.
	Alpha float64
	// Lambda is the trace decay.
	Lambda float64
	// Decrement is subtracted from the exploration rate at every episode end.
	Decrement float64
	// Terminate: training stops once the exploration rate is at or below this.
	Terminate float64
}

// Validate requires a positive decrement and threshold so that training terminates.
func (p Params) Validate() error {
	if p.Decrement <= 0 {
		return fmt.Errorf("%w: decrement must be positive, got %v", ErrInvalidConfig, p.Decrement)
	}
	if p.Terminate <= 0 {
		return fmt.Errorf("%w: terminate must be positive, got %v", ErrInvalidConfig, p.Terminate)
	}
	if p.ExplorationRate > 1 {
		return fmt.Errorf("%w: exploration rate must be at most 1, got %v", ErrInvalidConfig, p.ExplorationRate)
	}
	return nil
}

// Engine runs SARSA(lambda)-style control over a Grid. It is not reentrant; one goroutine
// owns an Engine and its Grid for the life of a run.
type Engine struct {
	grid   *Grid
	rng    Rand
	params Params
	// rate is the current exploration rate (and discount)
	rate float64
}

// NewEngine returns an engine over the passed grid, with the exploration rate at its initial value.
func NewEngine(grid *Grid, params Params, rng Rand) *Engine {
	return &Engine{
		grid:   grid,
		rng:    rng,
		params: params,
		rate:   params.ExplorationRate,
	}
}

// Rate returns the current exploration rate.
func (e *Engine) Rate() float64 {
	return e.rate
}

func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) Grid() *Grid {
	return e.grid
}

// Done is the termination predicate: the exploration rate has reached the threshold.
func (e *Engine) Done() bool {
	return e.rate <= e.params.Terminate
}

// Step takes one action from the player's position and updates every cell's weights and
// traces. It returns true if the action ended the episode.
//
// The TD error bootstraps from the best action value at s, even when the action taken was
// exploratory, and the exploration rate serves as the discount.
func (e *Engine) Step() (episodeEnded bool) {
	state := e.grid.Player()
	qsa := e.grid.Cell(state)
	best := qsa.Best()
	bestValue := qsa.Weights[best]

	// Explore, exploit
	action := best
	if e.rng.Float64() < e.rate {
		action = DirectionAt(e.rng.Intn(NumDirections))
	}

	successor := e.grid.Neighbor(state, action)
	reward, successorMax := OutOfBoundsReward, 0.0
	if e.grid.IsInBounds(successor) {
		successorCell := e.grid.Cell(successor)
		reward = successorCell.Reward
		successorMax = successorCell.MaxWeight()
	}

	delta := reward + e.rate*successorMax - bestValue

	qsa.Eligibility[action] += 1

	alphaDelta := e.params.Alpha * delta
	traceDecay := e.rate * e.params.Lambda
	e.grid.Visit(func(_ Location, cell *Cell) {
		for k, trace := range cell.Eligibility {
			cell.Weights[k] += alphaDelta * trace
			cell.Eligibility[k] = traceDecay * trace
		}
	})

	e.grid.MovePlayer(successor)

	return e.checkEndOfEpisode()
}

// checkEndOfEpisode resets the player, clears all traces and decays the exploration rate
// if the player is on an obstacle, off the board, or on the goal.
func (e *Engine) checkEndOfEpisode() bool {
	player := e.grid.Player()
	if !e.grid.IsOnObstacle(player) && e.grid.IsInBounds(player) && player != e.grid.Goal() {
		return false
	}

	if err := e.grid.PlacePlayer(); err != nil {
		panic(fmt.Errorf("%w: %w", ErrInvariant, err))
	}
	e.grid.ClearEligibility()
	e.rate -= e.params.Decrement

	return true
}
