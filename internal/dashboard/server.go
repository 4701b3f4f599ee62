// Package dashboard serves evaluation results over HTTP and streams run
// progress to WebSocket clients.
//
// The server triggers at most one evaluation run at a time. Completed runs
// are archived so that the leaderboard survives restarts, and every
// progress tick is broadcast to connected clients as a JSON Event.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"model-arena/internal/eval"
	"model-arena/internal/report"
	"model-arena/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// RunFunc performs one evaluation run, reporting progress as models finish.
type RunFunc func(ctx context.Context, progress func(eval.Progress)) (*eval.Report, error)

// Archive stores completed reports. *storage.Store satisfies it.
type Archive interface {
	SaveReport(r *eval.Report) error
	GetReport(runID string) (*eval.Report, error)
	ListRuns(limit int) ([]storage.RunSummary, error)
	LatestReport() (*eval.Report, error)
}

// Event types sent to WebSocket clients.
const (
	EventStatus    = "status"
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Event is one WebSocket message.
type Event struct {
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Busy      bool                `json:"busy"`
	Progress  *eval.Progress      `json:"progress,omitempty"`
	Run       *storage.RunSummary `json:"run,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// Options configure a Server.
type Options struct {
	Port int
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// Reports, when set, also writes report files for triggered runs.
	Reports *report.Writer
}

const defaultRunsLimit = 20

// Server provides the arena dashboard.
type Server struct {
	run     RunFunc
	archive Archive
	reports *report.Writer

	router           *mux.Router
	server           *http.Server
	upgrader         websocket.Upgrader
	clients          map[*websocket.Conn]bool
	clientsMu        sync.RWMutex
	broadcastChannel chan Event
	stopChannel      chan struct{}
	stopOnce         sync.Once

	baseCtx    context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup

	mu        sync.RWMutex
	busy      bool
	pending   bool // a Refresh arrived during the current run
	stopped   bool
	lastError string
	isRunning bool
}

// NewServer creates a dashboard. The broadcaster starts immediately; call
// Start to listen and Stop to release resources.
func NewServer(run RunFunc, archive Archive, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		run:              run,
		archive:          archive,
		reports:          opts.Reports,
		upgrader:         websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:          make(map[*websocket.Conn]bool),
		broadcastChannel: make(chan Event, 256),
		stopChannel:      make(chan struct{}),
		baseCtx:          ctx,
		cancelRuns:       cancel,
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleDashboard).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/report/latest", s.handleLatestReport).Methods("GET")
	r.HandleFunc("/api/runs", s.handleListRuns).Methods("GET")
	r.HandleFunc("/api/runs/{id}", s.handleGetRun).Methods("GET")
	r.HandleFunc("/api/evaluate", s.handleEvaluate).Methods("POST")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router = r

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go s.clientBroadcaster()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("dashboard is already running")
	}

	go func() {
		log.Info().
			Str("address", s.server.Addr).
			Msg("Starting dashboard server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()

	s.isRunning = true
	log.Info().Msg("Dashboard started successfully")
	return nil
}

// Stop cancels any in-flight run, waits for it to finish, closes WebSocket
// clients and shuts the HTTP server down. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.pending = false
	s.mu.Unlock()

	s.cancelRuns()
	s.runs.Wait()

	s.stopOnce.Do(func() { close(s.stopChannel) })

	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown dashboard server")
		return err
	}

	s.isRunning = false
	log.Info().Msg("Dashboard stopped")
	return nil
}

// Trigger starts a run in the background. It returns false when a run is
// already in progress or the server has been stopped.
func (s *Server) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

// Refresh asks for a run reflecting the latest models. If a run is already
// in progress, one follow-up run starts after it finishes; further requests
// in the meantime are coalesced into it.
func (s *Server) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy && !s.stopped {
		s.pending = true
		return
	}
	s.startLocked()
}

// startLocked must be called with s.mu held. Adding to s.runs under the
// lock orders it before the Wait in Stop.
func (s *Server) startLocked() bool {
	if s.busy || s.stopped {
		return false
	}
	s.busy = true
	s.lastError = ""

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute()
	}()
	return true
}

func (s *Server) execute() {
	rep, err := s.run(s.baseCtx, func(p eval.Progress) {
		s.publish(Event{Type: EventProgress, Busy: true, Progress: &p})
	})

	if err == nil {
		err = s.archiveReport(rep)
	}

	s.mu.Lock()
	s.busy = false
	if err != nil {
		s.lastError = err.Error()
	}
	rerun := s.pending
	s.pending = false
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Msg("Triggered evaluation failed")
		s.publish(Event{Type: EventFailed, Error: err.Error()})
	} else {
		summary := storage.Summarize(rep)
		s.publish(Event{Type: EventCompleted, Run: &summary})
	}

	if rerun && s.Trigger() {
		log.Info().Msg("Models changed during the run, re-evaluating")
	}
}

func (s *Server) archiveReport(rep *eval.Report) error {
	if err := s.archive.SaveReport(rep); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	if s.reports != nil {
		if _, err := s.reports.Write(rep); err != nil {
			return fmt.Errorf("failed to write report files: %w", err)
		}
	}
	return nil
}

// Busy reports whether a run is in progress.
func (s *Server) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy
}

func (s *Server) publish(e Event) {
	e.Timestamp = time.Now()
	select {
	case s.broadcastChannel <- e:
	default:
		log.Warn().Str("type", e.Type).Msg("Broadcast channel full, dropping event")
	}
}

// clientBroadcaster fans events out to every connected WebSocket client
func (s *Server) clientBroadcaster() {
	for {
		select {
		case e := <-s.broadcastChannel:
			s.broadcastToClients(e)
		case <-s.stopChannel:
			return
		}
	}
}

func (s *Server) broadcastToClients(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event for broadcast")
		return
	}

	// Writes are serialized by the exclusive lock; gorilla connections
	// support one concurrent writer.
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("Failed to send message to WebSocket client")
			client.Close()
			delete(s.clients, client)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"busy": s.busy, "last_error": s.lastError})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.archive.LatestReport()
	s.respondReport(w, rep, err)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.archive.GetReport(mux.Vars(r)["id"])
	s.respondReport(w, rep, err)
}

func (s *Server) respondReport(w http.ResponseWriter, rep *eval.Report, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	case err != nil:
		log.Error().Err(err).Msg("Failed to read report")
		writeError(w, http.StatusInternalServerError, "failed to read report")
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.archive.ListRuns(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !s.Trigger() {
		writeError(w, http.StatusConflict, "an evaluation run is already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleWebSocket registers a client and keeps it until the peer goes away
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	hello, _ := json.Marshal(Event{Type: EventStatus, Timestamp: time.Now(), Busy: s.Busy()})

	s.clientsMu.Lock()
	s.clients[conn] = true
	err = conn.WriteMessage(websocket.TextMessage, hello)
	if err != nil {
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
}
