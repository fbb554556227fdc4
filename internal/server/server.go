// Package server exposes the translation pipeline, compiler checks, run
// history and dataset samples over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/valpere/sctran/internal/compiler"
	"github.com/valpere/sctran/internal/dataset"
	"github.com/valpere/sctran/internal/metrics"
	"github.com/valpere/sctran/internal/pipeline"
	"github.com/valpere/sctran/internal/store"
)

const (
	maxBodyBytes        = 1 << 20
	defaultListLimit    = 50
	defaultSampleCount  = 5
	maxSampleCount      = 50
	shutdownGracePeriod = 10 * time.Second
)

type Translator interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Compiler interface {
	CheckCompilation(ctx context.Context, source string) compiler.Result
}

// History is the read side of the run store.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	ListAudits(ctx context.Context, runID string) ([]store.AuditEntry, error)
	Stats(ctx context.Context) (*store.RunStats, error)
}

type Samples interface {
	Len() int
	Get(i int) (dataset.Entry, error)
	Sample(n int, rng *rand.Rand) []dataset.Entry
	Search(query string, limit int) []dataset.Entry
}

type Server struct {
	translator Translator
	compiler   Compiler
	history    History
	samples    Samples
	metrics    *metrics.Metrics
	logger     *slog.Logger
	origins    []string
	timeout    time.Duration
}

type Option func(*Server)

func WithCompiler(c Compiler) Option        { return func(s *Server) { s.compiler = c } }
func WithHistory(h History) Option          { return func(s *Server) { s.history = h } }
func WithSamples(d Samples) Option          { return func(s *Server) { s.samples = d } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithCORSOrigins lists the origins allowed to call the API from a browser.
// "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithTranslateTimeout bounds a single /api/translate request.
func WithTranslateTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(translator Translator, opts ...Option) *Server {
	s := &Server{
		translator: translator,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewHTTPServer builds an *http.Server with the project's timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := NewHTTPServer(addr, s.Router())

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("translation API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
	defer cancel()
	s.logger.Info("shutting down translation API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/translate", s.handleTranslate)
		r.Post("/compile", s.handleCompile)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/stats", s.handleStats)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/samples", s.handleSamples)
		r.Get("/samples/{index}", s.handleSample)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.origins, "*") || slices.Contains(s.origins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.compiler != nil {
		if probe, ok := s.compiler.(interface{ Available(context.Context) bool }); ok {
			body["compiler_available"] = probe.Available(r.Context())
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type translateRequest struct {
	ContractText     string `json:"contract_text"`
	MaxIterations    *int   `json:"max_iterations,omitempty"`
	CheckCompilation *bool  `json:"check_compilation,omitempty"`
	Reference        string `json:"reference,omitempty"`
	NoCache          bool   `json:"no_cache,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ContractText) == "" {
		writeError(w, http.StatusBadRequest, "contract_text is required")
		return
	}
	if req.MaxIterations != nil && *req.MaxIterations < 0 {
		writeError(w, http.StatusBadRequest, "max_iterations must not be negative")
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.translator.Run(ctx, pipeline.Request{
		ContractText:     req.ContractText,
		MaxIterations:    req.MaxIterations,
		CheckCompilation: req.CheckCompilation,
		Reference:        req.Reference,
		NoCache:          req.NoCache,
	})
	if err != nil {
		s.translateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) translateError(w http.ResponseWriter, r *http.Request, err error) {
	var stageErr *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrEmptyContract):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		body := map[string]string{"error": "translation timed out"}
		if errors.As(err, &stageErr) {
			body["stage"] = string(stageErr.Stage)
		}
		writeJSON(w, http.StatusGatewayTimeout, body)
	case errors.As(err, &stageErr):
		s.logger.Error("translation failed",
			"request_id", middleware.GetReqID(r.Context()),
			"stage", stageErr.Stage,
			"error", stageErr.Err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
			"stage": string(stageErr.Stage),
		})
	default:
		s.logger.Error("translation failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "translation failed")
	}
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	if s.compiler == nil {
		writeError(w, http.StatusServiceUnavailable, "compilation checks are disabled")
		return
	}
	var req struct {
		Source string `json:"source"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	res := s.compiler.CheckCompilation(r.Context(), req.Source)
	if s.metrics != nil {
		s.metrics.ObserveCompilation(res)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"compilation": res,
		"summary":     compiler.Summary(res),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	limit, ok := queryInt(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to compute stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load run", err)
		return
	}
	audits, err := s.history.ListAudits(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "failed to load audits", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "audits": audits})
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.samples == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset is not loaded")
		return
	}
	n, ok := queryInt(w, r, "n", defaultSampleCount)
	if !ok {
		return
	}
	n = min(n, maxSampleCount)

	var entries []dataset.Entry
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		entries = s.samples.Search(q, n)
	} else {
		entries = s.samples.Sample(n, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   s.samples.Len(),
		"samples": entries,
	})
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	if s.samples == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset is not loaded")
		return
	}
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	e, err := s.samples.Get(i)
	if errors.Is(err, dataset.ErrOutOfRange) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load sample", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		s.logger.Warn("invalid request body",
			"request_id", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
			"error", err.Error())
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, "request_id", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
