package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"propman-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "payment_events"

// Message is what connected clients receive.
type Message struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

type clusterEnvelope struct {
	Origin          string          `json:"origin"`
	TargetAccountID string          `json:"target_account_id"`
	Message         json.RawMessage `json:"message"`
}

// Hub fans payment events out to every connection an account holds. With
// Redis configured, events reach connections on other instances too.
type Hub struct {
	clients    map[uuid.UUID][]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	rdb    redis.UniversalClient
	origin string
	ready  chan struct{}
	done   chan struct{}
	logger logger.ILogger
}

// NewHub returns a hub; rdb may be nil for a single instance.
func NewHub(rdb redis.UniversalClient, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Ready is closed once the hub accepts registrations and, with Redis, is
// subscribed to the cluster channel.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(ctx, clusterChannel)
		defer pubsub.Close()
		if _, err := pubsub.Receive(ctx); err != nil {
			h.logger.Error("HUB", "Cluster subscription failed, serving local clients only", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			go h.relay(pubsub.Channel())
		}
	}
	close(h.ready)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.AccountID] = append(h.clients[client.AccountID], client)
			h.mu.Unlock()
			h.logger.Debug("HUB", "Client registered", map[string]interface{}{"account_id": client.AccountID.String()})

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, clients := range h.clients {
				for _, c := range clients {
					close(c.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.AccountID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.AccountID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.AccountID]) == 0 {
		delete(h.clients, client.AccountID)
	}
}

// Notify delivers an event to every connection of accountId.
func (h *Hub) Notify(ctx context.Context, accountId uuid.UUID, eventType string, data map[string]interface{}) {
	payload, err := json.Marshal(Message{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("HUB", "Failed to encode message", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliver(accountId, payload)

	if h.rdb == nil {
		return
	}
	envelope, _ := json.Marshal(clusterEnvelope{
		Origin:          h.origin,
		TargetAccountID: accountId.String(),
		Message:         payload,
	})
	if err := h.rdb.Publish(ctx, clusterChannel, envelope).Err(); err != nil {
		h.logger.Warn("HUB", "Cluster publish failed", map[string]interface{}{
			"account_id": accountId.String(),
			"error":      err.Error(),
		})
	}
}

// deliver never blocks: a client that cannot keep up misses the message.
func (h *Hub) deliver(accountId uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[accountId] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("HUB", "Client send buffer full, dropping message", map[string]interface{}{
				"account_id": accountId.String(),
			})
		}
	}
}

func (h *Hub) relay(ch <-chan *redis.Message) {
	for msg := range ch {
		var env clusterEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			h.logger.Warn("HUB", "Dropping malformed cluster message", map[string]interface{}{"error": err.Error()})
			continue
		}
		if env.Origin == h.origin {
			continue
		}
		accountId, err := uuid.Parse(env.TargetAccountID)
		if err != nil {
			continue
		}
		h.deliver(accountId, env.Message)
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) connected(accountId uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountId])
}
