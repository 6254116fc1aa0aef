package handlers

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/api"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/internal/cache"
	"github.com/parth1006/workflow-engine/storage"
	"github.com/parth1006/workflow-engine/types"
)

// GraphHandler serves graph definition management.
type GraphHandler struct {
	store  storage.Store
	cache  *cache.Manager
	logger *zap.Logger
}

// NewGraphHandler creates a graph handler. The cache manager is
// optional; when nil, deletes skip cache invalidation.
func NewGraphHandler(store storage.Store, cacheManager *cache.Manager, logger *zap.Logger) *GraphHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphHandler{
		store:  store,
		cache:  cacheManager,
		logger: logger.With(zap.String("component", "graph_handler")),
	}
}

// HandleCreateGraph serves POST /api/v1/graphs. The definition is
// validated before it is persisted; a graph that fails validation is
// never stored.
func (h *GraphHandler) HandleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req api.CreateGraphRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name is required", h.logger)
		return
	}

	graph := engine.NewGraph(req.Name, req.Description, req.Nodes, req.Edges, req.EntryPoint)
	if err := graph.Validate(); err != nil {
		var typed *types.Error
		if errors.As(err, &typed) {
			WriteError(w, typed, h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidGraph, err.Error(), h.logger)
		return
	}

	if err := h.store.SaveGraph(r.Context(), graph); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	h.logger.Info("graph created",
		zap.String("graph_id", graph.ID),
		zap.String("name", graph.Name),
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
	)
	WriteCreated(w, graph)
}

// HandleListGraphs serves GET /api/v1/graphs.
func (h *GraphHandler) HandleListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := h.store.ListGraphs(r.Context())
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	summaries := make([]api.GraphSummary, 0, len(graphs))
	for _, g := range graphs {
		summaries = append(summaries, api.NewGraphSummary(g))
	}
	WriteSuccess(w, api.ListGraphsResponse{Graphs: summaries, Count: len(summaries)})
}

// HandleGetGraph serves GET /api/v1/graphs/{id}.
func (h *GraphHandler) HandleGetGraph(w http.ResponseWriter, r *http.Request) {
	graphID := extractPathID(r, "/api/v1/graphs/")
	if graphID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "graph ID is required", h.logger)
		return
	}

	graph, err := h.store.GetGraph(r.Context(), graphID)
	if err != nil {
		writeStoreError(w, err, h.logger)
		return
	}
	WriteSuccess(w, graph)
}

// HandleDeleteGraph serves DELETE /api/v1/graphs/{id}. Run records of
// the graph are kept; only the definition goes away.
func (h *GraphHandler) HandleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	graphID := extractPathID(r, "/api/v1/graphs/")
	if graphID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "graph ID is required", h.logger)
		return
	}

	if err := h.store.DeleteGraph(r.Context(), graphID); err != nil {
		writeStoreError(w, err, h.logger)
		return
	}

	if h.cache != nil {
		if err := h.cache.Delete(r.Context(), cache.GraphKey(graphID)); err != nil {
			h.logger.Warn("cache invalidation failed", zap.String("graph_id", graphID), zap.Error(err))
		}
	}

	h.logger.Info("graph deleted", zap.String("graph_id", graphID))
	WriteSuccess(w, map[string]string{"graph_id": graphID})
}

// extractPathID pulls the {id} segment from the request. It prefers
// the mux path value and falls back to prefix trimming for handlers
// mounted without a pattern.
func extractPathID(r *http.Request, prefix string) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" || path == r.URL.Path {
		return ""
	}
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		path = path[:idx]
	}
	return path
}
