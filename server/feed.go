package server

import (
	"sync"

	"gridworld/grid_world"
	"gridworld/reinforcement"
)

// Feed is a reinforcement.Observer forwarding checkpoints to the live view. Forwarding
// never blocks a run: a checkpoint is dropped when the buffer is full. Feed also keeps
// each run's latest checkpoint for rendering the initial page.
type Feed struct {
	mu          sync.Mutex
	latest      map[string]reinforcement.Checkpoint
	order       []string
	checkpoints chan reinforcement.Checkpoint
}

// NewFeed feeds the passed runs, which must not yet be training.
func NewFeed(runs []*reinforcement.Run) *Feed {
	feed := &Feed{
		latest:      map[string]reinforcement.Checkpoint{},
		checkpoints: make(chan reinforcement.Checkpoint, len(runs)),
	}
	for _, run := range runs {
		feed.latest[run.ID()] = reinforcement.Checkpoint{
			RunInfo: run.Info(),
			Rate:    run.Engine().Rate(),
			Board:   run.Snapshot(),
		}
		feed.order = append(feed.order, run.ID())
	}
	return feed
}

// Checkpoints returns the chan of forwarded checkpoints. It is closed by Close.
func (feed *Feed) Checkpoints() <-chan reinforcement.Checkpoint {
	return feed.checkpoints
}

// Latest returns each run's latest checkpoint, in construction order.
func (feed *Feed) Latest() []reinforcement.Checkpoint {
	feed.mu.Lock()
	defer feed.mu.Unlock()
	cps := make([]reinforcement.Checkpoint, 0, len(feed.order))
	for _, id := range feed.order {
		cps = append(cps, feed.latest[id])
	}
	return cps
}

// Close ends the feed. It must be called only once training has finished.
func (feed *Feed) Close() {
	close(feed.checkpoints)
}

func (feed *Feed) OnStart(reinforcement.RunInfo, grid_world.Snapshot) {}

func (feed *Feed) OnCheckpoint(cp reinforcement.Checkpoint) {
	feed.forward(cp)
}

func (feed *Feed) OnFinish(report reinforcement.Report) {
	feed.forward(report.Checkpoint)
}

func (feed *Feed) forward(cp reinforcement.Checkpoint) {
	feed.mu.Lock()
	if _, ok := feed.latest[cp.ID]; ok {
		feed.latest[cp.ID] = cp
	}
	feed.mu.Unlock()

	select {
	case feed.checkpoints <- cp:
	default:
	}
}
