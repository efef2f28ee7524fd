// Package publish pushes each committed snapshot to Redis so dashboards and
// other consumers can read or subscribe without polling the HTTP API.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

const publishTimeout = 5 * time.Second

// Envelope is the JSON document stored under the key and sent on the channel.
type Envelope struct {
	CycleID   string                  `json:"cycle_id"`
	Seq       uint64                  `json:"seq"`
	Timestamp time.Time               `json:"timestamp"`
	Services  map[string]probe.Result `json:"services"`
}

// Encode renders snap as an Envelope.
func Encode(snap *snapshot.Snapshot) ([]byte, error) {
	data, err := json.Marshal(Envelope{
		CycleID:   snap.CycleID,
		Seq:       snap.Seq,
		Timestamp: snap.CompletedAt,
		Services:  snap.Results,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// RedisPublisher stores the latest snapshot under a key and publishes it.
type RedisPublisher struct {
	client  redis.Cmdable
	key     string
	channel string
}

// NewRedisPublisher creates a publisher using an existing client.
func NewRedisPublisher(client redis.Cmdable, key, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key, channel: channel}
}

// Connect creates a client for addr and checks that Redis answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Name identifies the publisher in logs.
func (p *RedisPublisher) Name() string {
	return "redis"
}

// Observe stores and publishes next in one transaction.
func (p *RedisPublisher) Observe(ctx context.Context, _, next *snapshot.Snapshot) error {
	data, err := Encode(next)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.key, data, 0)
		pipe.Publish(ctx, p.channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish snapshot to redis: %w", err)
	}

	slog.Debug("snapshot published",
		"key", p.key,
		"channel", p.channel,
		"seq", next.Seq,
	)
	return nil
}
