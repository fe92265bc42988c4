package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"studykit-be/internal/pkg/logger"
	"studykit-be/pkg/store"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries snapshots between server instances.
const ClusterChannel = "studykit_session_events"

// Hub fans session snapshots out to the sockets following each session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	// nil runs the hub single-instance
	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

type frame struct {
	Type string        `json:"type"`
	Data store.Session `json:"data"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// EncodeSnapshot renders snap as the frame sockets receive.
func EncodeSnapshot(snap store.Session) ([]byte, error) {
	return json.Marshal(frame{Type: "session", Data: snap})
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.relay(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.attach(c)
		case c := <-h.unregister:
			h.detach(c)
		}
	}
}

func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	set, ok := h.sessions[c.sessionID]
	if !ok {
		set = make(map[*Client]struct{})
		h.sessions[c.sessionID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.logger.Info("Hub", "Socket attached", map[string]interface{}{"session_id": c.sessionID, "sockets": n})
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.sessions[c.sessionID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.pending)
	if len(set) == 0 {
		delete(h.sessions, c.sessionID)
	}
}

// SessionChanged is a pipeline listener: it pushes snap to local sockets and
// to the other instances.
func (h *Hub) SessionChanged(sessionID string, snap store.Session) {
	msg, err := EncodeSnapshot(snap)
	if err != nil {
		h.logger.Error("Hub", "Snapshot encoding failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return
	}
	h.deliver(sessionID, msg)

	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterMessage{Origin: h.instanceID, SessionID: sessionID, Message: msg})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	}
}

// Listeners reports how many local sockets follow sessionID.
func (h *Hub) Listeners(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func (h *Hub) deliver(sessionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.sessions[sessionID] {
		if c.offer(msg) {
			h.logger.Debug("Hub", "Unsent snapshot superseded", map[string]interface{}{"session_id": sessionID})
		}
	}
}

// relay delivers snapshots published by other instances.
func (h *Hub) relay(ctx context.Context) {
	sub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer sub.Close()

	for m := range sub.Channel() {
		var cm clusterMessage
		if err := json.Unmarshal([]byte(m.Payload), &cm); err != nil {
			h.logger.Warn("Hub", "Cluster message unreadable", map[string]interface{}{"error": err.Error()})
			continue
		}
		if cm.Origin == h.instanceID {
			continue
		}
		h.deliver(cm.SessionID, cm.Message)
	}
}
