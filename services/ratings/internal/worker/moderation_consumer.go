// Package worker consumes moderation events and persists an audit trail of
// auto-hidden ratings for later review.
package worker

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/campus-share/internal/platform/analytics"
	"github.com/example/campus-share/internal/platform/db"
)

// hiddenEvent is the analytics envelope payload for a rating_hidden event.
type hiddenEvent struct {
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties"`
}

// StartModerationConsumer subscribes to rating_hidden events and records
// them in moderation_audit. Event ids make the insert idempotent across
// redeliveries.
//
// The sink is acquired before the durable consumer is created. When the
// audit trail is disabled no consumer must exist, or the stream would
// accumulate deliveries nobody ever fetches.
func StartModerationConsumer(ctx context.Context, nc *nats.Conn, log *zap.Logger) {
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		log.Warn("moderation_consumer: DATABASE_URL not set, audit trail disabled")
		return
	}
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		log.Error("moderation_consumer: postgres", zap.Error(err))
		return
	}
	defer pool.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Error("moderation_consumer: jetstream", zap.Error(err))
		return
	}
	sub, err := js.PullSubscribe(analytics.SubjectRatingHidden, "ratings_moderation_audit")
	if err != nil {
		log.Error("moderation_consumer: subscribe", zap.Error(err))
		return
	}
	defer func() {
		if err := sub.Drain(); err != nil {
			log.Warn("moderation_consumer: drain", zap.Error(err))
		}
	}()

	batchSize := envInt("WORKER_BATCH_SIZE", 100)
	batchWait := time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := sub.Fetch(batchSize, nats.MaxWait(batchWait))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			log.Error("moderation_consumer: fetch", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range msgs {
			var ev hiddenEvent
			if err := json.Unmarshal(m.Data, &ev); err != nil {
				log.Warn("moderation_consumer: invalid event", zap.Error(err))
				_ = m.Ack() // poison message, drop it
				continue
			}
			if err := recordHidden(ctx, pool, ev); err != nil {
				log.Error("moderation_consumer: record", zap.String("event_id", ev.EventID), zap.Error(err))
				_ = m.Nak()
				continue
			}
			_ = m.Ack()
		}
	}
}

func recordHidden(ctx context.Context, pool *pgxpool.Pool, ev hiddenEvent) error {
	ratingID, _ := ev.Properties["rating_id"].(string)
	resourceID, _ := ev.Properties["resource_id"].(string)
	reportCount := 0
	if n, ok := ev.Properties["report_count"].(float64); ok {
		reportCount = int(n)
	}

	const q = `
INSERT INTO moderation_audit (event_id, rating_id, resource_id, report_count, hidden_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO NOTHING;
`
	_, err := pool.Exec(ctx, q, ev.EventID, ratingID, resourceID, reportCount, ev.OccurredAt)
	return err
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
