package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gridworld/reinforcement"
	"gridworld/server/fastview"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testParams = reinforcement.Params{
	ExplorationRate: 0.9,
	Alpha:           0.1,
	Lambda:          0.5,
	Decrement:       0.05,
	Terminate:       0.05,
}

func newRuns(t *testing.T) []*reinforcement.Run {
	var runs []*reinforcement.Run
	for seed := uint64(1); seed <= 2; seed++ {
		run, err := reinforcement.NewRun(reinforcement.GridConfig{Rows: 4, Cols: 5, Seed: seed}, testParams, 10)
		require.NoError(t, err)
		runs = append(runs, run)
	}
	return runs
}

func newTestServer(t *testing.T, runs []*reinforcement.Run) (*Feed, *reinforcement.Tracker, *httptest.Server) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	feed := NewFeed(runs)
	tracker := reinforcement.NewTracker(runs)
	server, err := NewServer(ctx, "", feed, tracker, zerolog.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return feed, tracker, srv
}

func TestFeed(t *testing.T) {
	t.Run("never blocks a run", func(t *testing.T) {
		runs := newRuns(t)
		feed := NewFeed(runs)

		cp := feed.Latest()[0]
		for i := 0; i < 100; i++ {
			cp.Actions = int64(i)
			feed.OnCheckpoint(cp)
		}
		require.Len(t, feed.Checkpoints(), len(runs))
		require.EqualValues(t, 99, feed.Latest()[0].Actions)
	})

	t.Run("keeps the latest checkpoint per run", func(t *testing.T) {
		runs := newRuns(t)
		feed := NewFeed(runs)
		obs := reinforcement.Observers{feed}

		report, err := reinforcement.Train(runs[1], obs)
		require.NoError(t, err)

		latest := feed.Latest()
		require.Equal(t, runs[0].ID(), latest[0].ID)
		require.EqualValues(t, 0, latest[0].Actions)
		require.Equal(t, report.Checkpoint, latest[1])

		feed.Close()
		count := 0
		for range feed.Checkpoints() {
			count++
		}
		require.Equal(t, len(runs), count)
	})
}

func TestIndex(t *testing.T) {
	runs := newRuns(t)
	_, _, srv := newTestServer(t, runs)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	page := string(body)
	require.Contains(t, page, `new WebSocket("ws://" + location.host + "/ws")`)
	for _, run := range runs {
		require.Contains(t, page, run.ID()+"-0-0-glyph")
		require.Contains(t, page, run.ID()+"-3-4-value")
		require.Contains(t, page, run.ID()+"-episodes")
	}

	resp, err = http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgress(t *testing.T) {
	runs := newRuns(t)
	_, tracker, srv := newTestServer(t, runs)

	_, err := reinforcement.Train(runs[0], tracker)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var progress []Progress
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&progress))
	require.Len(t, progress, 2)

	require.Equal(t, runs[0].ID(), progress[0].ID)
	require.True(t, progress[0].Finished)
	require.LessOrEqual(t, progress[0].Rate, testParams.Terminate)
	require.Greater(t, progress[0].Actions, int64(0))
	require.Equal(t, 4, progress[0].Rows)
	require.Equal(t, 5, progress[0].Cols)

	require.False(t, progress[1].Finished)
	require.Equal(t, testParams.ExplorationRate, progress[1].Rate)
}

func TestWebsocket(t *testing.T) {
	runs := newRuns(t)
	feed, _, srv := newTestServer(t, runs)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	// keep checkpoints coming, since the client and the feed both drop what they cannot take
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		cp := feed.Latest()[0]
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				cp.Actions++
				feed.OnCheckpoint(cp)
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var updates []fastview.EleUpdate
	require.NoError(t, conn.ReadJSON(&updates))
	require.NotEmpty(t, updates)
	for _, update := range updates {
		require.True(t, strings.HasPrefix(update.EleId, runs[0].ID()+"-"), update.EleId)
		require.NotEmpty(t, update.Ops)
	}
}
