package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session in a hash at "session:<external_id>".
// Keys have no TTL and live until the conversation is reset.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "session"}
}

func (r *RedisStore) key(externalID int64) string {
	return fmt.Sprintf("%s:%d", r.prefix, externalID)
}

func (r *RedisStore) Get(ctx context.Context, externalID int64) (Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(externalID)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("load session %d: %w", externalID, err)
	}
	if len(fields) == 0 {
		return Idle(), nil
	}

	s := Session{State: State(fields["state"])}
	if s.State == "" {
		s.State = StateIdle
	}
	if v := fields["product_id"]; v != "" {
		if s.ProductID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Session{}, fmt.Errorf("session %d has bad product_id %q: %w", externalID, v, err)
		}
	}
	if v := fields["order_id"]; v != "" {
		if s.OrderID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return Session{}, fmt.Errorf("session %d has bad order_id %q: %w", externalID, v, err)
		}
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, externalID int64, s Session) error {
	if s.State == "" {
		s.State = StateIdle
	}
	key := r.key(externalID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"state", string(s.State),
			"product_id", s.ProductID,
			"order_id", s.OrderID,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %d: %w", externalID, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, externalID int64) error {
	if err := r.client.Del(ctx, r.key(externalID)).Err(); err != nil {
		return fmt.Errorf("clear session %d: %w", externalID, err)
	}
	return nil
}
