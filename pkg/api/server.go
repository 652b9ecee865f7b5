package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/blob"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/store"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// Run is one investigation: a fresh graph that collectors populate and
// analysis reads.
type Run struct {
	ID        string
	StartedAt time.Time
	Graph     *graph.Graph
}

// Server encapsulates the HTTP API server
type Server struct {
	logger   *zap.Logger
	server   *http.Server
	analyzer *engine.Analyzer
	planner  *engine.Planner
	reports  store.ReportStore
	blobs    blob.BlobStore
	now      func() time.Time

	graphOpts []graph.Option
	incidents []graph.Incident

	mu  sync.RWMutex
	run *Run
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and outcome logs.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAnalyzer replaces the default analyzer.
func WithAnalyzer(a *engine.Analyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithReportStore enables the /v1/reports endpoints.
func WithReportStore(rs store.ReportStore) Option {
	return func(s *Server) { s.reports = rs }
}

// WithBlobStore enables archiving dumps alongside reports.
func WithBlobStore(bs blob.BlobStore) Option {
	return func(s *Server) { s.blobs = bs }
}

// WithGraphOptions sets the options every run's graph is built with.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(s *Server) { s.graphOpts = opts }
}

// WithIncidents preloads historical incidents into every run.
func WithIncidents(incidents []graph.Incident) Option {
	return func(s *Server) { s.incidents = incidents }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new API server instance with an empty first run.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		logger:   zap.NewNop(),
		analyzer: engine.NewAnalyzer(engine.DefaultConfig()),
		planner:  engine.NewPlanner(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	// Register routes
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/runs", s.handleRuns)
	mux.HandleFunc("/v1/runs/current", s.handleCurrentRun)
	mux.HandleFunc("/v1/entities", s.handleEntities)
	mux.HandleFunc("/v1/entities/", s.handleEntity)
	mux.HandleFunc("/v1/relationships", s.handleRelationships)
	mux.HandleFunc("/v1/issues", s.handleIssues)
	mux.HandleFunc("/v1/facts", s.handleFacts)
	mux.HandleFunc("/v1/incidents", s.handleIncidents)
	mux.HandleFunc("/v1/incidents/link", s.handleLinkIncidents)
	mux.HandleFunc("/v1/related", s.handleRelated)
	mux.HandleFunc("/v1/path", s.handlePath)
	mux.HandleFunc("/v1/summary", s.handleSummary)
	mux.HandleFunc("/v1/dump", s.handleDump)
	mux.HandleFunc("/v1/rootcauses", s.handleRootCauses)
	mux.HandleFunc("/v1/fixplan", s.handleFixPlan)
	mux.HandleFunc("/v1/reports", s.handleReports)
	mux.HandleFunc("/v1/reports/", s.handleReport)
	mux.HandleFunc("/v1/export", s.handleExport)

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := withLogging(s.logger, withRecovery(s.logger, withSecureHeaders(mux)))

	// Use default port if addr is empty
	if addr == "" {
		addr = ":8090"
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.NewRun()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	s.logger.Info("server_starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server_stopping")
	return s.server.Shutdown(ctx)
}

// NewRun replaces the current graph with an empty one carrying the
// configured historical incidents.
func (s *Server) NewRun() *Run {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
		Graph:     graph.New(s.graphOpts...),
	}
	if len(s.incidents) > 0 {
		ids, err := run.Graph.LoadHistoricalIncidents(s.incidents)
		if err != nil {
			s.logger.Warn("incidents_partially_loaded", zap.String("run_id", run.ID), zap.Error(err))
		}
		s.logger.Debug("incidents_loaded", zap.String("run_id", run.ID), zap.Int("count", len(ids)))
	}

	s.mu.Lock()
	s.run = run
	s.mu.Unlock()

	engine.ObserveSummary(run.Graph.Summary())
	s.logger.Info("run_started", zap.String("run_id", run.ID))
	return run
}

// CurrentRun returns the run new facts are applied to.
func (s *Server) CurrentRun() *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func (s *Server) investigate() (*Run, engine.Investigation) {
	run := s.CurrentRun()
	return run, engine.Investigate(run.Graph, s.analyzer, s.planner)
}

// handleHealth returns simple status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
