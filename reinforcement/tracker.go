package reinforcement

import (
	"sync/atomic"

	"gridworld/atomic_float"
	"gridworld/grid_world"
)

// RunProgress is the latest known progress of one run, readable from any goroutine
// while the run's own goroutine writes it.
type RunProgress struct {
	Info     RunInfo
	rate     *atomic_float.AtomicFloat64
	episodes atomic.Int64
	actions  atomic.Int64
	finished atomic.Bool
}

func (rp *RunProgress) Rate() float64 {
	return rp.rate.AtomicRead()
}

func (rp *RunProgress) Episodes() int64 {
	return rp.episodes.Load()
}

func (rp *RunProgress) Actions() int64 {
	return rp.actions.Load()
}

func (rp *RunProgress) Finished() bool {
	return rp.finished.Load()
}

// Tracker is an Observer recording each run's latest checkpoint. Its run set is fixed at
// construction, so observing never takes a lock.
type Tracker struct {
	runs  map[string]*RunProgress
	order []string
}

// NewTracker tracks the passed runs.
func NewTracker(runs []*Run) *Tracker {
	tracker := &Tracker{runs: map[string]*RunProgress{}}
	for _, run := range runs {
		tracker.runs[run.ID()] = &RunProgress{
			Info: run.Info(),
			rate: atomic_float.NewAtomicFloat64(run.Engine().Rate()),
		}
		tracker.order = append(tracker.order, run.ID())
	}
	return tracker
}

// Progress returns the tracked runs in construction order.
func (tracker *Tracker) Progress() []*RunProgress {
	progress := make([]*RunProgress, 0, len(tracker.order))
	for _, id := range tracker.order {
		progress = append(progress, tracker.runs[id])
	}
	return progress
}

func (tracker *Tracker) OnStart(RunInfo, grid_world.Snapshot) {}

func (tracker *Tracker) OnCheckpoint(cp Checkpoint) {
	tracker.record(cp)
}

func (tracker *Tracker) OnFinish(report Report) {
	if rp := tracker.record(report.Checkpoint); rp != nil {
		rp.finished.Store(true)
	}
}

func (tracker *Tracker) record(cp Checkpoint) *RunProgress {
	rp, ok := tracker.runs[cp.ID]
	if !ok {
		return nil
	}
	rp.rate.AtomicSet(cp.Rate)
	rp.episodes.Store(cp.Episodes)
	rp.actions.Store(cp.Actions)
	return rp
}
