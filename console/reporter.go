package console

import (
	"fmt"
	"io"
	"sync"

	"gridworld/grid_world"
	"gridworld/reinforcement"

	"github.com/rs/zerolog"
)

// Reporter is a reinforcement.Observer that logs run progress and prints boards
// before and after training. Boards of concurrent runs are written whole, never interleaved.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	logger zerolog.Logger
}

// NewReporter writes boards to out and events to logger.
func NewReporter(out io.Writer, logger zerolog.Logger) *Reporter {
	return &Reporter{
		out:    out,
		logger: logger,
	}
}

func (r *Reporter) OnStart(info reinforcement.RunInfo, board grid_world.Snapshot) {
	r.logger.Info().
		Str("run", info.ID).
		Int("rows", info.Rows).
		Int("cols", info.Cols).
		Bool("obstacles", info.ObstaclesEnabled).
		Msgf("starting %d x %d board", info.Rows, info.Cols)
	r.printBoard(info.ID, &board)
}

func (r *Reporter) OnCheckpoint(cp reinforcement.Checkpoint) {
	r.logger.Debug().
		Str("run", cp.ID).
		Int64("episodes", cp.Episodes).
		Int64("actions", cp.Actions).
		Float64("rate", cp.Rate).
		Msg("checkpoint")
}

func (r *Reporter) OnFinish(report reinforcement.Report) {
	r.printBoard(report.ID, &report.Board)
	r.logger.Info().
		Str("run", report.ID).
		Dur("elapsed", report.Elapsed).
		Int64("episodes", report.Episodes).
		Int64("actions", report.Actions).
		Float64("rate", report.Rate).
		Int("rows", report.Rows).
		Int("cols", report.Cols).
		Bool("obstacles", report.ObstaclesEnabled).
		Stringer("player", report.Board.Player).
		Stringer("goal", report.Board.Goal).
		Msgf("solving took %.3f seconds", report.Elapsed.Seconds())
}

func (r *Reporter) printBoard(id string, board *grid_world.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.out, "Id: %s\n%s\n\n", id, RenderBoard(board)); err != nil {
		r.logger.Warn().Err(err).Str("run", id).Msg("failed to print board")
	}
}
