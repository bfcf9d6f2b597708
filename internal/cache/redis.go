// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for scored round records.
const DefaultQueueName = "filterbattle_rounds"

// ErrBadRecord marks a queue entry that is not a valid round record.
var ErrBadRecord = errors.New("cache: malformed round record")

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// listClient is the subset of redis.Cmdable the queue uses.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RoundQueue is a Redis list of JSON round records. The game server pushes
// onto it and the historian pops from it.
type RoundQueue struct {
	client listClient
	name   string
}

func NewRoundQueue(client listClient, name string) *RoundQueue {
	if name == "" {
		name = DefaultQueueName
	}
	return &RoundQueue{client: client, name: name}
}

func (q *RoundQueue) Name() string {
	return q.name
}

// RecordRound serializes the record to JSON, then pushes it to the Redis queue.
func (q *RoundQueue) RecordRound(ctx context.Context, rec models.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRecord: %w", err)
	}
	if err := q.client.RPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.name, err)
	}
	return nil
}

// Pop blocks up to timeout for the next record. It returns nil, nil when the
// wait times out with the queue still empty.
func (q *RoundQueue) Pop(ctx context.Context, timeout time.Duration) (*models.RoundRecord, error) {
	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.name, err)
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return nil, nil
	}

	var rec models.RoundRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return &rec, nil
}
