package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

const writeTimeout = 5 * time.Second

type peer struct {
	info NodeInfo
	conn *websocket.Conn
}

// Hub accepts watch and observer connections and routes messages between them and the Handler
type Hub struct {
	logger         *zap.Logger
	originPatterns []string

	mu      sync.RWMutex
	handler Handler
	peers   map[string]*peer
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewHub creates a hub. originPatterns restricts browser origins; empty allows same-origin only.
func NewHub(logger *zap.Logger, originPatterns ...string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:         logging.OrNop(logger).Named("watch"),
		originPatterns: originPatterns,
		peers:          make(map[string]*peer),
		ctx:            ctx,
		cancel:         cancel,
		now:            time.Now,
	}
}

// SetHandler installs the receiver of watch traffic
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) currentHandler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// ServeHTTP upgrades the request. Query parameters: name (display name), role (watch|observer).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	role := RoleWatch
	if strings.EqualFold(r.URL.Query().Get("role"), string(RoleObserver)) {
		role = RoleObserver
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	p := &peer{
		info: NodeInfo{
			ID:          uuid.NewString(),
			Name:        r.URL.Query().Get("name"),
			Role:        role,
			RemoteAddr:  r.RemoteAddr,
			ConnectedAt: h.now(),
		},
		conn: conn,
	}
	if !h.register(p) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(p)

	log := h.logger.With(zap.String("node", p.info.ID), zap.String("name", p.info.Name), zap.String("role", string(role)))
	log.Info("node connected")

	if role == RoleWatch {
		if handler := h.currentHandler(); handler != nil {
			h.goDispatch(func(ctx context.Context) { handler.NodeConnected(ctx, p.info) })
		}
	}

	h.readLoop(p, log)
}

func (h *Hub) readLoop(p *peer, log *zap.Logger) {
	for {
		var msg Message
		err := wsjson.Read(h.ctx, p.conn, &msg)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				log.Info("node disconnected")
			} else {
				log.Warn("node read failed", zap.Error(err))
			}
			return
		}
		if p.info.Role == RoleObserver {
			continue
		}

		h.broadcastObservers(Envelope{
			Direction: Inbound,
			NodeID:    p.info.ID,
			Path:      msg.Path,
			Data:      msg.Data,
			At:        h.now(),
		})

		handler := h.currentHandler()
		if handler == nil {
			log.Warn("no handler for message", zap.String("path", msg.Path))
			continue
		}
		info := p.info
		h.goDispatch(func(ctx context.Context) { handler.HandleMessage(ctx, info, msg) })
	}
}

// goDispatch runs fn on its own goroutine bound to the hub lifetime
func (h *Hub) goDispatch(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(h.ctx)
	}()
}

func (h *Hub) register(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p.info.ID] = p
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.info.ID)
	h.mu.Unlock()
	p.conn.Close(websocket.StatusNormalClosure, "")
	h.wg.Done()
}

func (h *Hub) snapshot(role Role) []*peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		if p.info.Role == role {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].info.ConnectedAt.Before(out[j].info.ConnectedAt)
	})
	return out
}

// ConnectedNodes lists the connected watches, oldest first
func (h *Hub) ConnectedNodes() []NodeInfo {
	peers := h.snapshot(RoleWatch)
	out := make([]NodeInfo, len(peers))
	for i, p := range peers {
		out[i] = p.info
	}
	return out
}

// ObserverCount returns the number of connected observers
func (h *Hub) ObserverCount() int {
	return len(h.snapshot(RoleObserver))
}

// Send writes the message to every connected watch and returns how many accepted it.
// It fails with ErrNoWatch when none is connected and with the write errors when every
// write failed; a partial delivery is not an error.
func (h *Hub) Send(ctx context.Context, path string, data []byte) (int, error) {
	msg := Message{Path: path, Data: string(data)}
	peers := h.snapshot(RoleWatch)
	if len(peers) == 0 {
		h.logger.Warn("no connected watch", zap.String("path", path))
	}

	delivered := 0
	var errs []error
	for _, p := range peers {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(writeCtx, p.conn, msg)
		cancel()
		if err != nil {
			h.logger.Warn("send failed", zap.String("node", p.info.ID), zap.String("path", path), zap.Error(err))
			errs = append(errs, fmt.Errorf("node %s: %w", p.info.ID, err))
			continue
		}
		delivered++
		h.logger.Debug("sent", zap.String("node", p.info.ID), zap.String("path", path))
	}

	h.broadcastObservers(Envelope{
		Direction: Outbound,
		Path:      path,
		Data:      msg.Data,
		At:        h.now(),
		Delivered: delivered,
	})

	switch {
	case len(peers) == 0:
		return 0, ErrNoWatch
	case delivered == 0:
		return 0, fmt.Errorf("watch: sending %s: %w", path, errors.Join(errs...))
	}
	return delivered, nil
}

func (h *Hub) broadcastObservers(env Envelope) {
	for _, p := range h.snapshot(RoleObserver) {
		ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
		if err := wsjson.Write(ctx, p.conn, env); err != nil {
			h.logger.Debug("observer write failed", zap.String("node", p.info.ID), zap.Error(err))
		}
		cancel()
	}
}

// Close disconnects every peer and waits for in-flight handlers
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.conn.Close(websocket.StatusGoingAway, "relay shutting down")
	}
	h.cancel()
	h.wg.Wait()
}
