package reinforcement

import (
	"fmt"
	"time"

	"gridworld/grid_world"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// RunInfo identifies a run and its board for presentation.
type RunInfo struct {
	ID               string
	Rows, Cols       int
	ObstaclesEnabled bool
}

// Checkpoint is a periodic, read-only progress report.
type Checkpoint struct {
	RunInfo
	Episodes int64
	Actions  int64
	Rate     float64
	Board    grid_world.Snapshot
}

// Report is the final summary of a completed run.
type Report struct {
	Checkpoint
	Elapsed time.Duration
}

// Observer receives a run's progress. Train calls it from the run's own goroutine, so
// implementations shared by concurrent runs must be safe for concurrent use, and should
// return quickly.
type Observer interface {
	OnStart(info RunInfo, board grid_world.Snapshot)
	OnCheckpoint(cp Checkpoint)
	OnFinish(report Report)
}

// Observers fans out to several observers, in order.
type Observers []Observer

func (obs Observers) OnStart(info RunInfo, board grid_world.Snapshot) {
	for _, o := range obs {
		o.OnStart(info, board)
	}
}

func (obs Observers) OnCheckpoint(cp Checkpoint) {
	for _, o := range obs {
		o.OnCheckpoint(cp)
	}
}

func (obs Observers) OnFinish(report Report) {
	for _, o := range obs {
		o.OnFinish(report)
	}
}

// Run is one grid and its engine, trained as an isolated unit of work.
type Run struct {
	info       RunInfo
	engine     *Engine
	checkpoint int64
}

// NewRun builds a grid and engine per the grid config, sharing one seeded random source
// that belongs to this run alone.
func NewRun(gc GridConfig, params Params, checkpoint int64) (*Run, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if checkpoint < 1 {
		return nil, fmt.Errorf("%w: checkpoint must be positive, got %d", ErrInvalidConfig, checkpoint)
	}

	seed := gc.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewSource(seed))

	var grid *grid_world.Grid
	var err error
	if len(gc.Layout) > 0 {
		grid, err = grid_world.Convert(gc.Layout, rng)
	} else {
		grid, err = grid_world.New(gc.Options(), rng)
	}
	if err != nil {
		return nil, err
	}

	return NewRunWithEngine(NewEngine(grid, params, rng), checkpoint), nil
}

// NewRunWithEngine wraps an existing engine in a run with a fresh id.
func NewRunWithEngine(engine *Engine, checkpoint int64) *Run {
	grid := engine.Grid()
	return &Run{
		info: RunInfo{
			ID:               uuid.NewString()[:5],
			Rows:             grid.Rows(),
			Cols:             grid.Cols(),
			ObstaclesEnabled: grid.ObstaclesEnabled(),
		},
		engine:     engine,
		checkpoint: checkpoint,
	}
}

func (run *Run) Info() RunInfo {
	return run.info
}

func (run *Run) ID() string {
	return run.info.ID
}

func (run *Run) Engine() *Engine {
	return run.engine
}

// Snapshot returns the current board. Only safe before or after Train, or from an Observer.
func (run *Run) Snapshot() grid_world.Snapshot {
	return run.engine.Grid().Snapshot()
}

// Train steps the engine until the exploration rate reaches the threshold, counting actions
// and episodes and reporting a checkpoint every run.checkpoint actions. It is synchronous
// and cannot be cancelled. An invariant violation aborts the run with an ErrInvariant error.
func Train(run *Run, obs Observer) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok {
				err = fmt.Errorf("%w: run %s: %w", ErrInvariant, run.ID(), rErr)
			} else {
				err = fmt.Errorf("%w: run %s: %v", ErrInvariant, run.ID(), r)
			}
		}
	}()

	engine := run.engine
	obs.OnStart(run.info, run.Snapshot())

	start := time.Now()
	var actions, episodes int64
	for !engine.Done() {
		if engine.Step() {
			episodes++
		}
		actions++

		if actions%run.checkpoint == 0 {
			obs.OnCheckpoint(run.checkpointAt(episodes, actions))
		}
	}

	report = Report{
		Checkpoint: run.checkpointAt(episodes, actions),
		Elapsed:    time.Since(start),
	}
	obs.OnFinish(report)
	return
}

func (run *Run) checkpointAt(episodes, actions int64) Checkpoint {
	return Checkpoint{
		RunInfo:  run.info,
		Episodes: episodes,
		Actions:  actions,
		Rate:     run.engine.Rate(),
		Board:    run.Snapshot(),
	}
}

// TrainAll trains every run concurrently, one goroutine per run, and waits for all of them.
// Runs share no state; a failed run does not stop the others. Reports are returned in run
// order, and the first error encountered (if any) is returned.
func TrainAll(runs []*Run, obs Observer) ([]Report, error) {
	reports := make([]Report, len(runs))
	group := errgroup.Group{}
	for i, run := range runs {
		i, run := i, run
		group.Go(func() (err error) {
			reports[i], err = Train(run, obs)
			return
		})
	}
	err := group.Wait()
	return reports, err
}
