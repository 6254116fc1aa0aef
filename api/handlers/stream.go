package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parth1006/workflow-engine/api"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/storage"
	"github.com/parth1006/workflow-engine/types"
)

// subscriberBuffer is the extra channel capacity beyond the replayed
// backlog. A subscriber that falls this far behind is dropped.
const subscriberBuffer = 64

// feedRetention keeps a finished feed around briefly so clients that
// connect just after the run ends still get the live path.
const feedRetention = 30 * time.Second

// Broker fans out execution logs from running workflows to WebSocket
// subscribers. It implements engine.Observer; attach it to a run with
// engine.WithObserver and the feed appears under the run's ID.
type Broker struct {
	mu     sync.Mutex
	runs   map[string]*runFeed
	logger *zap.Logger
}

type runFeed struct {
	mu      sync.Mutex
	entries []engine.ExecutionLog
	subs    map[chan api.StreamMessage]struct{}
	done    bool
	summary *api.RunSummary
}

// NewBroker creates an empty broker.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		runs:   make(map[string]*runFeed),
		logger: logger.With(zap.String("component", "stream_broker")),
	}
}

func (b *Broker) feed(runID string) *runFeed {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.runs[runID]
	if !ok {
		f = &runFeed{subs: make(map[chan api.StreamMessage]struct{})}
		b.runs[runID] = f
	}
	return f
}

// NodeExecuted implements engine.Observer: the entry is buffered for
// late subscribers and fanned out to current ones.
func (b *Broker) NodeExecuted(run *engine.Run, entry engine.ExecutionLog) {
	f := b.feed(run.RunID)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)

	msg := api.StreamMessage{Kind: "log", Log: &entry}
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
			// Slow consumer; drop it rather than stall the run.
			delete(f.subs, ch)
			close(ch)
			b.logger.Warn("dropped slow stream subscriber", zap.String("run_id", run.RunID))
		}
	}
}

// RunFinished implements engine.Observer: subscribers get a closing
// frame with the run summary, then the feed is retired.
func (b *Broker) RunFinished(run *engine.Run) {
	f := b.feed(run.RunID)
	summary := api.NewRunSummary(run)

	f.mu.Lock()
	f.done = true
	f.summary = &summary
	msg := api.StreamMessage{Kind: "done", Run: &summary}
	for ch := range f.subs {
		select {
		case ch <- msg:
		default:
		}
		close(ch)
	}
	f.subs = make(map[chan api.StreamMessage]struct{})
	f.mu.Unlock()

	runID := run.RunID
	time.AfterFunc(feedRetention, func() {
		b.mu.Lock()
		delete(b.runs, runID)
		b.mu.Unlock()
	})
}

// Subscribe attaches to a run's feed. The returned channel first
// replays the backlog, then carries live entries, and is closed after
// the "done" frame. The second return is false when the broker has no
// feed for the run.
func (b *Broker) Subscribe(runID string) (<-chan api.StreamMessage, func(), bool) {
	b.mu.Lock()
	f, ok := b.runs[runID]
	b.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan api.StreamMessage, len(f.entries)+subscriberBuffer)
	for i := range f.entries {
		ch <- api.StreamMessage{Kind: "log", Log: &f.entries[i]}
	}
	if f.done {
		ch <- api.StreamMessage{Kind: "done", Run: f.summary}
		close(ch)
		return ch, func() {}, true
	}

	f.subs[ch] = struct{}{}
	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, live := f.subs[ch]; live {
			delete(f.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, true
}

// StreamHandler serves GET /api/v1/runs/{id}/stream over WebSocket.
// Live runs stream from the broker; finished runs replay their
// persisted execution logs.
type StreamHandler struct {
	broker *Broker
	store  storage.Store
	logger *zap.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(broker *Broker, store storage.Store, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		broker: broker,
		store:  store,
		logger: logger.With(zap.String("component", "stream_handler")),
	}
}

// HandleStream upgrades the connection and pumps the run's execution
// log feed until the run finishes or the client goes away.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	runID := extractPathID(r, "/api/v1/runs/")
	if runID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run ID is required", h.logger)
		return
	}

	ch, cancel, live := h.broker.Subscribe(runID)
	if !live {
		// No feed in memory: replay the persisted record.
		run, err := h.store.GetRun(r.Context(), runID)
		if err != nil {
			writeStoreError(w, err, h.logger)
			return
		}
		h.replayRun(w, r, run)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		for msg := range ch {
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
		return conn.Close(websocket.StatusNormalClosure, "run finished")
	})
	g.Go(func() error {
		// The client sends nothing meaningful; reading surfaces its
		// departure so the writer stops.
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		h.logger.Debug("stream ended", zap.String("run_id", runID), zap.Error(err))
	}
}

// replayRun streams a finished run's logs from storage and closes.
func (h *StreamHandler) replayRun(w http.ResponseWriter, r *http.Request, run *engine.Run) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("run_id", run.RunID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for i := range run.Logs {
		if err := writeMessage(ctx, conn, api.StreamMessage{Kind: "log", Log: &run.Logs[i]}); err != nil {
			return
		}
	}
	summary := api.NewRunSummary(run)
	if err := writeMessage(ctx, conn, api.StreamMessage{Kind: "done", Run: &summary}); err != nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "run finished")
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg api.StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
