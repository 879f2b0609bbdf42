package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dating-trust-engine/internal/domain"
	"dating-trust-engine/internal/infra/metrics"
)

// RedisEventQueue реализует очередь поведенческих событий на базе Redis lists.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisEventQueue) Enqueue(ctx context.Context, event domain.BehaviorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveStoreRequest("redis", "enqueue", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *RedisEventQueue) Pop(ctx context.Context) (domain.BehaviorEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.BehaviorEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.BehaviorEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.BehaviorEvent{}, err
		}
		if len(res) != 2 {
			return domain.BehaviorEvent{}, errors.New("redis queue: unexpected response")
		}
		var event domain.BehaviorEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.BehaviorEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}
