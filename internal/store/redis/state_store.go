// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"namedq/internal/config"
	"namedq/internal/domain"
	"namedq/internal/metrics"
)

// Each route is a hash under prefixRoute+name.
const (
	prefixRoute = "namedq:route:"

	fieldDirection       = "direction"
	fieldForwarded       = "forwarded"
	fieldRejected        = "rejected"
	fieldReopens         = "reopens"
	fieldLastMessageID   = "last_message_id"
	fieldLastForwardedAt = "last_forwarded_at"
)

// StateStore implements store.StateStore using Redis.
type StateStore struct {
	client redis.UniversalClient
}

// NewStateStore creates a new Redis-backed state store.
func NewStateStore(cfg *config.RedisConfig) (*StateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &StateStore{client: client}, nil
}

// NewStateStoreWithClient wraps an existing client.
func NewStateStoreWithClient(client redis.UniversalClient) *StateStore {
	return &StateStore{client: client}
}

func routeKey(route string) string {
	return prefixRoute + route
}

// GetRouteState returns the route's hash, or nil if the route has none.
func (s *StateStore) GetRouteState(ctx context.Context, route string) (*domain.RouteState, error) {
	defer observe("read", time.Now())

	fields, err := s.client.HGetAll(ctx, routeKey(route)).Result()
	if err != nil {
		countOp("read", err)
		return nil, fmt.Errorf("failed to get route state: %w", err)
	}
	countOp("read", nil)
	if len(fields) == 0 {
		return nil, nil
	}

	state, err := parseRouteState(route, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to parse route state: %w", err)
	}
	return state, nil
}

// RecordForward increments the forwarded counter and stores the last message.
func (s *StateStore) RecordForward(ctx context.Context, route string, direction domain.Direction, messageID string, at time.Time) error {
	key := routeKey(route)
	return s.write(ctx, "record forward", func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key,
			fieldDirection, string(direction),
			fieldLastMessageID, messageID,
			fieldLastForwardedAt, at.UTC().Format(time.RFC3339Nano),
		)
		pipe.HIncrBy(ctx, key, fieldForwarded, 1)
	})
}

// RecordRejected increments the rejected counter.
func (s *StateStore) RecordRejected(ctx context.Context, route string, direction domain.Direction) error {
	return s.incr(ctx, "record rejected", route, direction, fieldRejected)
}

// RecordReopen increments the reopen counter.
func (s *StateStore) RecordReopen(ctx context.Context, route string, direction domain.Direction) error {
	return s.incr(ctx, "record reopen", route, direction, fieldReopens)
}

func (s *StateStore) incr(ctx context.Context, op, route string, direction domain.Direction, field string) error {
	key := routeKey(route)
	return s.write(ctx, op, func(pipe redis.Pipeliner) {
		pipe.HSet(ctx, key, fieldDirection, string(direction))
		pipe.HIncrBy(ctx, key, field, 1)
	})
}

// write runs fn in a MULTI/EXEC pipeline so counters and fields move together.
func (s *StateStore) write(ctx context.Context, op string, fn func(pipe redis.Pipeliner)) error {
	defer observe("write", time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(pipe)
		return nil
	})
	countOp("write", err)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func parseRouteState(route string, fields map[string]string) (*domain.RouteState, error) {
	state := &domain.RouteState{
		Route:         route,
		Direction:     domain.Direction(fields[fieldDirection]),
		LastMessageID: fields[fieldLastMessageID],
	}

	counters := []struct {
		field string
		dst   *int64
	}{
		{fieldForwarded, &state.Forwarded},
		{fieldRejected, &state.Rejected},
		{fieldReopens, &state.Reopens},
	}
	for _, c := range counters {
		raw, ok := fields[c.field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", c.field, err)
		}
		*c.dst = n
	}

	if raw := fields[fieldLastForwardedAt]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldLastForwardedAt, err)
		}
		state.LastForwardedAt = at
	}
	return state, nil
}

// Close closes the Redis client connection.
func (s *StateStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func observe(operation string, start time.Time) {
	metrics.StorageOperationLatency.WithLabelValues("redis", operation).Observe(time.Since(start).Seconds())
}

func countOp(operation string, err error) {
	status := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues("redis", operation, status).Inc()
}
