// Package realtime pushes committed balance changes to connected players
// over WebSocket. Events fan out across API instances through redis pubsub.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/pkg/metrics"
)

// BalanceChannel is the redis channel balance events are fanned out on.
const BalanceChannel = "ledger:balance"

type envelope struct {
	Instance string             `json:"instance"`
	Event    ledger.BalanceEvent `json:"event"`
}

// Connection represents a WebSocket connection
type Connection struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub manages WebSocket connections keyed by user
type Hub struct {
	connections map[uuid.UUID]map[*Connection]bool
	mu          sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Connection
	unregister chan *Connection

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
}

var _ ledger.Publisher = (*Hub)(nil)

// NewHub creates a hub. redisClient may be nil for a single instance.
func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		connections: make(map[uuid.UUID]map[*Connection]bool),
		redis:       redisClient,
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
		instanceID:  uuid.NewString(),
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, BalanceChannel)
	}
	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runRedisSubscriber()
	}

	for {
		select {
		case <-h.ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.connections[conn.UserID] == nil {
				h.connections[conn.UserID] = make(map[*Connection]bool)
			}
			h.connections[conn.UserID][conn] = true
			h.mu.Unlock()
			metrics.WSConnections.Inc()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Balance stream connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.connections[conn.UserID]; ok {
				if _, exists := conns[conn]; exists {
					delete(conns, conn)
					close(conn.Send)
					metrics.WSConnections.Dec()
				}
				if len(conns) == 0 {
					delete(h.connections, conn.UserID)
				}
			}
			h.mu.Unlock()
			log.Debug().Str("user_id", conn.UserID.String()).Msg("Balance stream disconnected")
		}
	}
}

func (h *Hub) runRedisSubscriber() {
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRemote(msg.Payload)
		}
	}
}

func (h *Hub) handleRemote(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return
	}
	if env.Instance == h.instanceID {
		return
	}
	h.deliver(env.Event)
}

// PublishBalance delivers the event to the user's local connections and
// to every other instance.
func (h *Hub) PublishBalance(ctx context.Context, e ledger.BalanceEvent) {
	h.deliver(e)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(envelope{Instance: h.instanceID, Event: e})
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, BalanceChannel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", e.UserID.String()).Msg("Balance event publish failed")
	}
}

func (h *Hub) deliver(e ledger.BalanceEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.connections[e.UserID]
	if !ok {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	for conn := range conns {
		select {
		case conn.Send <- data:
			metrics.WSEvents.WithLabelValues("sent").Inc()
		default:
			metrics.WSEvents.WithLabelValues("dropped").Inc()
			log.Warn().Str("user_id", e.UserID.String()).Msg("WebSocket send buffer full")
		}
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.ctx.Done():
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.ctx.Done():
	}
}

// ConnectionCount returns the number of local connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}

// Shutdown gracefully shuts down the hub
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
