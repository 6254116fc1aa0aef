package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/api"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/internal/cache"
	"github.com/parth1006/workflow-engine/types"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	registry := actions.NewRegistry(zap.NewNop())
	registry.Register("analyze", func(ctx context.Context, state types.State) (types.State, error) {
		return types.State{"analyzed": true}, nil
	})
	registry.Register("report", func(ctx context.Context, state types.State) (types.State, error) {
		return types.State{"reported": true}, nil
	})
	return engine.New(registry, zap.NewNop())
}

func runMux(h *RunHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/graphs/run", h.HandleRunGraph)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/v1/graphs/{id}/runs", h.HandleListRuns)
	return mux
}

func seedGraph(t *testing.T, store *memStore) *engine.GraphDefinition {
	t.Helper()
	graph := engine.NewGraph("pipeline", "",
		[]engine.NodeDefinition{
			{Name: "analyze", Action: "analyze"},
			{Name: "report", Action: "report"},
		},
		[]engine.EdgeDefinition{{From: "analyze", To: "report"}},
		"analyze",
	)
	require.NoError(t, store.SaveGraph(t.Context(), graph))
	return graph
}

func TestRunHandler_RunGraph(t *testing.T) {
	store := newMemStore()
	graph := seedGraph(t, store)
	mux := runMux(NewRunHandler(testEngine(t), store, zap.NewNop()))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{
		GraphID:      graph.ID,
		InitialState: types.State{"source": "demo"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	run := resp.Data

	assert.Equal(t, engine.StatusCompleted, run.Status)
	assert.Equal(t, graph.ID, run.GraphID)
	assert.Equal(t, 2, run.Iterations)
	require.Len(t, run.Logs, 2)
	assert.Equal(t, "analyze", run.Logs[0].NodeName)
	assert.Equal(t, "report", run.Logs[1].NodeName)
	assert.Equal(t, true, run.State["analyzed"])
	assert.Equal(t, true, run.State["reported"])

	// The run record was persisted.
	stored, err := store.GetRun(t.Context(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, stored.Status)
}

func TestRunHandler_RunGraph_FailedRunStillReturns200(t *testing.T) {
	store := newMemStore()
	graph := engine.NewGraph("broken", "",
		[]engine.NodeDefinition{{Name: "start", Action: "no_such_action"}},
		nil, "start",
	)
	require.NoError(t, store.SaveGraph(t.Context(), graph))

	mux := runMux(NewRunHandler(testEngine(t), store, zap.NewNop()))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{GraphID: graph.ID})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, engine.StatusFailed, resp.Data.Status)
	assert.Contains(t, resp.Data.Error, "ACTION_NOT_FOUND")
}

func TestRunHandler_RunGraph_UnknownGraph(t *testing.T) {
	mux := runMux(NewRunHandler(testEngine(t), newMemStore(), zap.NewNop()))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{GraphID: "no-such-graph"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHandler_RunGraph_MissingGraphID(t *testing.T) {
	mux := runMux(NewRunHandler(testEngine(t), newMemStore(), zap.NewNop()))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_RunGraph_MaxIterationsOverride(t *testing.T) {
	store := newMemStore()
	registry := actions.NewRegistry(zap.NewNop())
	registry.Register("spin", func(ctx context.Context, state types.State) (types.State, error) {
		return nil, nil
	})
	eng := engine.New(registry, zap.NewNop())

	graph := engine.NewGraph("loop", "",
		[]engine.NodeDefinition{{Name: "spin", Action: "spin"}},
		[]engine.EdgeDefinition{{From: "spin", To: "spin"}},
		"spin",
	)
	require.NoError(t, store.SaveGraph(t.Context(), graph))

	mux := runMux(NewRunHandler(eng, store, zap.NewNop()))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{
		GraphID:       graph.ID,
		MaxIterations: 3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, engine.StatusIterationLimit, resp.Data.Status)
	assert.Equal(t, 3, resp.Data.Iterations)
}

func TestRunHandler_GetRun(t *testing.T) {
	store := newMemStore()
	run := engine.NewRun("graph-1", types.State{"k": "v"}, 10)
	require.NoError(t, store.SaveRun(t.Context(), run))

	mux := runMux(NewRunHandler(testEngine(t), store, zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.RunID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, run.RunID, resp.Data.RunID)
}

func TestRunHandler_GetRun_Missing(t *testing.T) {
	mux := runMux(NewRunHandler(testEngine(t), newMemStore(), zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/no-such-run", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHandler_GetRun_CacheReadThrough(t *testing.T) {
	srv := miniredis.RunT(t)
	manager, err := cache.NewManager(cache.Config{Addr: srv.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	store := newMemStore()
	graph := seedGraph(t, store)
	mux := runMux(NewRunHandler(testEngine(t), store, zap.NewNop(),
		WithRunCache(manager, time.Minute)))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{GraphID: graph.ID})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	runID := resp.Data.RunID

	// The finished run was written through to Redis.
	assert.True(t, srv.Exists(cache.RunKey(runID)))

	// Serve from cache even after the store loses the record.
	store.deleteRun(runID)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var cached struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cached))
	assert.Equal(t, runID, cached.Data.RunID)
	assert.Equal(t, engine.StatusCompleted, cached.Data.Status)
}

func TestRunHandler_ListRuns(t *testing.T) {
	store := newMemStore()
	graph := seedGraph(t, store)
	mux := runMux(NewRunHandler(testEngine(t), store, zap.NewNop()))

	for i := 0; i < 3; i++ {
		w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{GraphID: graph.ID})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/graphs/"+graph.ID+"/runs?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.ListRunsResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, graph.ID, resp.Data.GraphID)
	assert.Equal(t, 2, resp.Data.Count)
	for _, summary := range resp.Data.Runs {
		assert.Equal(t, engine.StatusCompleted, summary.Status)
		assert.Empty(t, summary.Error)
	}
}

func TestRunHandler_ListRuns_BadLimit(t *testing.T) {
	mux := runMux(NewRunHandler(testEngine(t), newMemStore(), zap.NewNop()))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/graphs/g/runs?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHandler_RunTimeout(t *testing.T) {
	store := newMemStore()
	registry := actions.NewRegistry(zap.NewNop())
	registry.Register("sleep", func(ctx context.Context, state types.State) (types.State, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil, nil
	})
	eng := engine.New(registry, zap.NewNop())

	graph := engine.NewGraph("slow", "",
		[]engine.NodeDefinition{{Name: "sleep", Action: "sleep"}},
		[]engine.EdgeDefinition{{From: "sleep", To: "sleep"}},
		"sleep",
	)
	require.NoError(t, store.SaveGraph(t.Context(), graph))

	mux := runMux(NewRunHandler(eng, store, zap.NewNop(), WithRunTimeout(20*time.Millisecond)))

	w := postJSON(t, mux, "/api/v1/graphs/run", api.RunGraphRequest{GraphID: graph.ID})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data engine.Run `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, engine.StatusCancelled, resp.Data.Status)
}
