// Package gateway serves the dashboard: REST endpoints over the SQLite
// store and a WebSocket feed of live cycle snapshots relayed from Redis.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"llm-crypto-trader/internal/model"
	redisstore "llm-crypto-trader/internal/store/redis"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and relays cycle snapshots published by
// the trading bot to every connected client.
type Hub struct {
	pub *redisstore.Publisher

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  json.RawMessage // newest cycle envelope for initial state
}

// NewHub creates a Hub relaying from the given Redis connection.
func NewHub(pub *redisstore.Publisher) *Hub {
	return &Hub{
		pub:     pub,
		clients: make(map[*Client]bool),
	}
}

// Run subscribes to the cycle channel and fans messages out to clients.
// Blocks until ctx is cancelled; resubscribes on channel loss.
func (h *Hub) Run(ctx context.Context) {
	if h.pub == nil {
		return
	}

	// Seed the initial-state cache so clients connecting before the
	// first live cycle still get a snapshot.
	if snap, err := h.pub.LatestCycle(ctx); err == nil && snap != nil {
		if data, err := json.Marshal(snap); err == nil {
			h.setLatest(envelope("cycle", data))
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}
		pubsub, err := h.pub.SubscribeCycles(ctx)
		if err != nil {
			log.Printf("[gateway] cycle subscribe failed: %v, retrying", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		ch := pubsub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					pubsub.Close()
					break recv
				}
				env := envelope("cycle", json.RawMessage(msg.Payload))
				h.setLatest(env)
				h.broadcast(env)
			}
		}
	}
}

func envelope(msgType string, data json.RawMessage) []byte {
	env, _ := json.Marshal(map[string]interface{}{
		"type": msgType,
		"data": data,
		"ts":   time.Now().UTC().Format(time.RFC3339Nano),
	})
	return env
}

func (h *Hub) setLatest(env []byte) {
	h.mu.Lock()
	h.latest = env
	h.mu.Unlock()
}

func (h *Hub) broadcast(env []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- env:
		default:
			// Slow client: drop the message rather than block the fan-out.
		}
	}
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	initial := h.latest
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	if initial != nil {
		client.send <- initial
	}
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastConfigUpdate notifies WS clients and Redis subscribers that the
// bot config changed.
func (h *Hub) BroadcastConfigUpdate(cfg model.BotConfig) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return
	}
	h.broadcast(envelope("config", data))

	if h.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.pub.PublishConfigUpdate(ctx, cfg); err != nil {
			log.Printf("[gateway] config update publish failed: %v", err)
		}
	}
}
