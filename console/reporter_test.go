package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gridworld/reinforcement"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func decodeEvents(t *testing.T, logs *bytes.Buffer) []map[string]interface{} {
	var events []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		if line == "" {
			continue
		}
		event := map[string]interface{}{}
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		events = append(events, event)
	}
	return events
}

func TestReporter(t *testing.T) {
	info := reinforcement.RunInfo{ID: "ab12c", Rows: 3, Cols: 3, ObstaclesEnabled: true}
	snap := board()

	t.Run("prints the board at start and finish", func(t *testing.T) {
		var out, logs bytes.Buffer
		reporter := NewReporter(&out, zerolog.New(&logs))

		reporter.OnStart(info, snap)
		reporter.OnFinish(reinforcement.Report{
			Checkpoint: reinforcement.Checkpoint{RunInfo: info, Episodes: 17, Actions: 420, Rate: 0.04, Board: snap},
			Elapsed:    1500 * time.Millisecond,
		})

		expected := "Id: ab12c\n X R L\n R # U\n D R O\n\n"
		require.Equal(t, expected+expected, out.String())

		events := decodeEvents(t, &logs)
		require.Len(t, events, 2)
		require.Equal(t, "ab12c", events[0]["run"])
		require.Equal(t, true, events[0]["obstacles"])
		require.EqualValues(t, 3, events[0]["rows"])

		require.EqualValues(t, 17, events[1]["episodes"])
		require.EqualValues(t, 420, events[1]["actions"])
		require.Equal(t, "(0,0)", events[1]["player"])
		require.Equal(t, "(2,2)", events[1]["goal"])
		require.Equal(t, "solving took 1.500 seconds", events[1]["message"])
	})

	t.Run("checkpoints are debug events", func(t *testing.T) {
		var out, logs bytes.Buffer
		reporter := NewReporter(&out, zerolog.New(&logs).Level(zerolog.InfoLevel))
		cp := reinforcement.Checkpoint{RunInfo: info, Episodes: 3, Actions: 100, Rate: 0.5, Board: snap}

		reporter.OnCheckpoint(cp)
		require.Empty(t, logs.String())

		reporter = NewReporter(&out, zerolog.New(&logs).Level(zerolog.DebugLevel))
		reporter.OnCheckpoint(cp)
		events := decodeEvents(t, &logs)
		require.Len(t, events, 1)
		require.Equal(t, "debug", events[0]["level"])
		require.EqualValues(t, 0.5, events[0]["rate"])
		require.Empty(t, out.String())
	})
}
