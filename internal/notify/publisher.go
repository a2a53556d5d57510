package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"

	"github.com/apexvest/backend/internal/store"
	"github.com/go-redis/redis/v8"
)

const (
	versionKey       = "ledger:events:version"
	broadcastChannel = "ledger:events"
)

// Publisher broadcasts a change event after every committed ledger
// mutation. The transport assigns a strictly increasing version via
// Redis INCR; listeners refetch full state when the version moves.
// Emission is best-effort and must never roll a commit back.
type Publisher struct {
	redis *redis.Client
	db    *sql.DB
}

func NewPublisher(redisClient *redis.Client, db *sql.DB) *Publisher {
	return &Publisher{redis: redisClient, db: db}
}

type envelope struct {
	Event   string `json:"event"`
	Version int64  `json:"version"`
	Payload any    `json:"payload,omitempty"`
}

// Publish assigns the next version and broadcasts the event. Safe to
// call with a nil Redis client (emission is skipped, not failed).
func (p *Publisher) Publish(ctx context.Context, event string, payload any) {
	if p.redis == nil {
		return
	}

	version, err := p.redis.Incr(ctx, versionKey).Result()
	if err != nil {
		log.Printf("[NOTIFY] failed to assign event version for %s: %v", event, err)
		return
	}

	data, err := json.Marshal(envelope{Event: event, Version: version, Payload: payload})
	if err != nil {
		log.Printf("[NOTIFY] failed to marshal event %s: %v", event, err)
		return
	}

	if err := p.redis.Publish(ctx, broadcastChannel, data).Err(); err != nil {
		log.Printf("[NOTIFY] failed to publish event %s: %v", event, err)
	}
}

// NotifyUser writes a per-user notification row and broadcasts the
// event. Both writes are best-effort.
func (p *Publisher) NotifyUser(ctx context.Context, userID, event, message string) {
	if p.db != nil {
		if err := store.InsertNotification(p.db, userID, event, message); err != nil {
			log.Printf("[NOTIFY] failed to store notification for user %s: %v", userID, err)
		}
	}
	p.Publish(ctx, event, map[string]string{"userId": userID, "message": message})
}
