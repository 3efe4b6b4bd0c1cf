package stakingd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"stakevault/core/events"
	"stakevault/core/types"
	"stakevault/observability"
)

const (
	wsWriteTimeout    = 10 * time.Second
	subscriberBacklog = 64
)

type subscriber struct {
	updates chan *types.Event
	filter  string
}

// Hub fans vault events out to websocket subscribers. Slow subscribers are
// disconnected rather than allowed to block the engine.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	metrics *observability.StakingMetrics
	logger  *slog.Logger
}

// NewHub constructs an empty hub.
func NewHub(metrics *observability.StakingMetrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		metrics: metrics,
		logger:  logger.With("component", "stream"),
	}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.filter != "" && payload.Attr("account") != sub.filter {
			continue
		}
		select {
		case sub.updates <- payload.Clone():
		default:
			close(sub.updates)
			delete(h.subs, sub)
			h.metrics.StreamClients(-1)
			h.logger.Warn("dropping slow subscriber")
		}
	}
}

// Subscribe registers a subscriber. account filters by depositor when set.
func (h *Hub) Subscribe(account string) (<-chan *types.Event, func()) {
	sub := &subscriber{updates: make(chan *types.Event, subscriberBacklog), filter: account}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.StreamClients(1)
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.updates)
			h.metrics.StreamClients(-1)
		}
	}
	return sub.updates, cancel
}

// ServeHTTP upgrades the request and streams events until either side hangs up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.URL.Query().Get("account"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := h.Subscribe(account)
	defer cancel()
	if err := stream(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func stream(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				return err
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
