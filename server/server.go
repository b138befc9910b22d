package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"gridworld/reinforcement"
	"gridworld/server/cell_views"
	"gridworld/server/fastview"
	"gridworld/server/root_view"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Time to wait for in-flight requests on shutdown.
const shutdownGracePeriod = 5 * time.Second

// Server serves a live view of the training runs: a single page whose elements are
// updated over a websocket as checkpoints arrive, and a json progress endpoint.
type Server struct {
	addr     string
	feed     *Feed
	tracker  *reinforcement.Tracker
	rootView *root_view.RootView
	hub      *hub
	logger   zerolog.Logger
}

// NewServer initializes all of the views and returns a server. The views stop when ctx is done.
func NewServer(
	ctx context.Context,
	addr string,
	feed *Feed,
	tracker *reinforcement.Tracker,
	logger zerolog.Logger,
) (*Server, error) {
	rootView, err := root_view.NewRootView(ctx, feed.Checkpoints())
	if err != nil {
		return nil, err
	}

	server := &Server{
		addr:     addr,
		feed:     feed,
		tracker:  tracker,
		rootView: rootView,
		hub:      newHub(),
		logger:   logger,
	}
	go server.hub.run(rootView.Updates())
	return server, nil
}

// Handler returns the server's routes.
func (server *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket)
	router.HandleFunc("/progress", server.serveProgress).Methods(http.MethodGet)
	return router
}

// Serve listens until ctx is cancelled, then shuts down. Request contexts, including
// those of websocket clients, derive from ctx.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:        server.addr,
		Handler:     server.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		server.logger.Info().Str("addr", server.addr).Msg("serving live view")
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes view updates to the client via websocket.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := server.hub.subscribe()
	defer unsubscribe()

	cli, err := fastview.NewClient(updates, w, r)
	if err != nil {
		server.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer cli.Close()

	if err := cli.Sync(); err != nil {
		server.logger.Warn().Err(err).Msg("websocket client failed")
	}
}

// serveIndex serves the index.html main page, rendered from each run's latest checkpoint.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	boards := cell_views.ConvertAll(server.feed.Latest())
	if err := renderTemplate(w, server.rootView, boards); err != nil {
		server.logger.Error().Err(err).Msg("failed to render index")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Progress is the json form of a run's tracked progress.
type Progress struct {
	ID        string  `json:"id"`
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	Obstacles bool    `json:"obstacles"`
	Episodes  int64   `json:"episodes"`
	Actions   int64   `json:"actions"`
	Rate      float64 `json:"rate"`
	Finished  bool    `json:"finished"`
}

func (server *Server) serveProgress(w http.ResponseWriter, r *http.Request) {
	progress := []Progress{}
	for _, rp := range server.tracker.Progress() {
		progress = append(progress, Progress{
			ID:        rp.Info.ID,
			Rows:      rp.Info.Rows,
			Cols:      rp.Info.Cols,
			Obstacles: rp.Info.ObstaclesEnabled,
			Episodes:  rp.Episodes(),
			Actions:   rp.Actions(),
			Rate:      rp.Rate(),
			Finished:  rp.Finished(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(progress); err != nil {
		server.logger.Warn().Err(err).Msg("failed to write progress")
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}

// hub multiplexes the root view's updates to every connected client. A client that is
// not ready for a batch misses it.
type hub struct {
	mu     sync.Mutex
	subs   map[chan []fastview.EleUpdate]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: map[chan []fastview.EleUpdate]struct{}{}}
}

func (h *hub) run(source <-chan []fastview.EleUpdate) {
	for updates := range source {
		h.mu.Lock()
		for sub := range h.subs {
			select {
			case sub <- updates:
			default:
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		close(sub)
	}
	h.subs = nil
}

func (h *hub) subscribe() (<-chan []fastview.EleUpdate, func()) {
	sub := make(chan []fastview.EleUpdate, 1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub)
		return sub, func() {}
	}
	h.subs[sub] = struct{}{}

	return sub, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub)
		}
	}
}
