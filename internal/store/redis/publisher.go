// Package redis publishes live cycle state for dashboard consumers.
//
// Redis is the best-effort live channel; SQLite remains the durable
// record. A circuit breaker keeps a dead Redis from stalling the cycle
// loop with per-publish timeouts.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"llm-crypto-trader/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// CycleChannel carries one message per completed cycle.
	CycleChannel = "pub:cycle"

	// ConfigChannel carries one message per config save/restore.
	ConfigChannel = "pub:config"

	// latestCycleKey holds the newest cycle snapshot for late joiners.
	latestCycleKey = "cycle:latest"

	latestCycleTTL = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher pushes cycle snapshots to Redis: SET latest + PUBLISH,
// pipelined, behind a circuit breaker.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	cb := NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{client: client, cb: cb}, nil
}

// PublishCycle writes the snapshot as the latest cycle state and notifies
// subscribers. Stale snapshots are worthless, so nothing is buffered while
// the breaker is open; the next cycle supersedes this one anyway.
func (p *Publisher) PublishCycle(ctx context.Context, snap model.CycleSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cycle snapshot: %w", err)
	}

	return p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, latestCycleKey, data, latestCycleTTL)
		pipe.Publish(ctx, CycleChannel, data)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis publish cycle: %w", err)
		}
		return nil
	})
}

// PublishConfigUpdate notifies subscribers that a new config version was
// saved or restored.
func (p *Publisher) PublishConfigUpdate(ctx context.Context, cfg model.BotConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return p.cb.Execute(func() error {
		if err := p.client.Publish(ctx, ConfigChannel, data).Err(); err != nil {
			return fmt.Errorf("redis publish config: %w", err)
		}
		return nil
	})
}

// LatestCycle returns the newest published snapshot, or nil if none is
// stored. Used to seed freshly connected dashboard clients.
func (p *Publisher) LatestCycle(ctx context.Context) (*model.CycleSnapshot, error) {
	data, err := p.client.Get(ctx, latestCycleKey).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest cycle: %w", err)
	}

	var snap model.CycleSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cycle snapshot: %w", err)
	}
	return &snap, nil
}

// SubscribeCycles subscribes to the cycle channel. The caller listens on
// the returned handle's Channel() and closes it when done.
func (p *Publisher) SubscribeCycles(ctx context.Context) (*goredis.PubSub, error) {
	pubsub := p.client.Subscribe(ctx, CycleChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", CycleChannel, err)
	}
	return pubsub, nil
}

// BreakerState reports the publish breaker state for health endpoints.
func (p *Publisher) BreakerState() State {
	return p.cb.CurrentState()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
