package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/api"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/internal/cache"
	"github.com/parth1006/workflow-engine/internal/metrics"
	"github.com/parth1006/workflow-engine/storage"
	"github.com/parth1006/workflow-engine/types"
)

// RunHandler serves workflow execution and run record retrieval.
type RunHandler struct {
	engine  *engine.Engine
	store   storage.Store
	cache   *cache.Manager
	metrics *metrics.Collector
	broker  *Broker
	logger  *zap.Logger

	runTimeout time.Duration
	cacheTTL   time.Duration
}

// RunHandlerOption configures a RunHandler.
type RunHandlerOption func(*RunHandler)

// WithRunCache enables Redis read-through for finished run records.
func WithRunCache(m *cache.Manager, ttl time.Duration) RunHandlerOption {
	return func(h *RunHandler) {
		h.cache = m
		h.cacheTTL = ttl
	}
}

// WithRunMetrics records run, node, and cache metrics.
func WithRunMetrics(c *metrics.Collector) RunHandlerOption {
	return func(h *RunHandler) { h.metrics = c }
}

// WithRunBroker feeds execution logs to the WebSocket stream broker.
func WithRunBroker(b *Broker) RunHandlerOption {
	return func(h *RunHandler) { h.broker = b }
}

// WithRunTimeout bounds each synchronous run. Zero means no bound
// beyond the client's own request context.
func WithRunTimeout(d time.Duration) RunHandlerOption {
	return func(h *RunHandler) { h.runTimeout = d }
}

// NewRunHandler creates a run handler.
func NewRunHandler(eng *engine.Engine, store storage.Store, logger *zap.Logger, opts ...RunHandlerOption) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &RunHandler{
		engine: eng,
		store:  store,
		logger: logger.With(zap.String("component", "run_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRunGraph serves POST /api/v1/graphs/run. Execution is
// synchronous: the response carries the terminal run record. A run
// that fails, hits the iteration ceiling, or is cancelled still
// returns 200 with the outcome in the record's status; HTTP errors
// are reserved for problems with the request itself.
func (h *RunHandler) HandleRunGraph(w http.ResponseWriter, r *http.Request) {
	var req api.RunGraphRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.GraphID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "graph_id is required", h.logger)
		return
	}
	if req.MaxIterations < 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "max_iterations must not be negative", h.logger)
		return
	}

	graph, err := h.store.GetGraph(r.Context(), req.GraphID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	runOpts := []engine.RunOption{}
	if req.MaxIterations > 0 {
		runOpts = append(runOpts, engine.WithRunMaxIterations(req.MaxIterations))
	}
	if h.broker != nil {
		runOpts = append(runOpts, engine.WithObserver(h.broker))
	}
	if h.metrics != nil {
		runOpts = append(runOpts, engine.WithObserver(&metricsObserver{collector: h.metrics}))
	}

	run, err := h.engine.Execute(ctx, graph, req.InitialState, runOpts...)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "execution failed").WithCause(err), h.logger)
		return
	}

	// The run context may already be expired; persist on the request
	// context so a timed-out run still gets recorded.
	if err := h.store.SaveRun(r.Context(), run); err != nil {
		h.logger.Error("failed to persist run record",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
	}
	h.cacheRun(r.Context(), run)

	h.logger.Info("run finished",
		zap.String("run_id", run.RunID),
		zap.String("graph_id", run.GraphID),
		zap.String("status", string(run.Status)),
		zap.Int("iterations", run.Iterations),
	)
	WriteSuccess(w, run)
}

// HandleGetRun serves GET /api/v1/runs/{id} with a cache read-through:
// finished runs are immutable, so a cached copy is always current.
func (h *RunHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := extractPathID(r, "/api/v1/runs/")
	if runID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run ID is required", h.logger)
		return
	}

	if h.cache != nil {
		var cached engine.Run
		err := h.cache.GetJSON(r.Context(), cache.RunKey(runID), &cached)
		if err == nil {
			if h.metrics != nil {
				h.metrics.RecordCacheHit("run")
			}
			WriteSuccess(w, &cached)
			return
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("cache lookup failed", zap.String("run_id", runID), zap.Error(err))
		}
		if h.metrics != nil {
			h.metrics.RecordCacheMiss("run")
		}
	}

	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	h.cacheRun(r.Context(), run)
	WriteSuccess(w, run)
}

// HandleListRuns serves GET /api/v1/graphs/{id}/runs?limit=.
func (h *RunHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	graphID := extractPathID(r, "/api/v1/graphs/")
	if graphID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "graph ID is required", h.logger)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a positive integer", h.logger)
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(r.Context(), graphID, limit)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	summaries := make([]api.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, api.NewRunSummary(run))
	}
	WriteSuccess(w, api.ListRunsResponse{GraphID: graphID, Runs: summaries, Count: len(summaries)})
}

// cacheRun stores a terminal run record in Redis. Non-terminal records
// are never cached; they would go stale.
func (h *RunHandler) cacheRun(ctx context.Context, run *engine.Run) {
	if h.cache == nil || !run.Status.Terminal() {
		return
	}
	if err := h.cache.SetJSON(ctx, cache.RunKey(run.RunID), run, h.cacheTTL); err != nil {
		h.logger.Warn("failed to cache run record",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
	}
}

// metricsObserver bridges engine progress callbacks to the Prometheus
// collector.
type metricsObserver struct {
	collector *metrics.Collector
}

func (o *metricsObserver) NodeExecuted(run *engine.Run, entry engine.ExecutionLog) {
	o.collector.RecordNode(entry.NodeName, entry.Duration)
}

func (o *metricsObserver) RunFinished(run *engine.Run) {
	duration := time.Since(run.StartedAt)
	if run.CompletedAt != nil {
		duration = run.CompletedAt.Sub(run.StartedAt)
	}
	o.collector.RecordRun(string(run.Status), duration, run.Iterations)
}
