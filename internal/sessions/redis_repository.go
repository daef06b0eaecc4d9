package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRepository implements Repository using Redis as the backing store.
// Presence is stored as JSON under key "<prefix><sessionID>" with TTL = expiresAt - now,
// so entries left behind by a crashed instance age out on their own.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisRepository creates a Redis-based presence repository. Prefix may be empty.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "presence:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisRepository) Put(ctx context.Context, p *Presence) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	exp := time.Until(p.ExpiresAt)
	if exp <= 0 {
		// ensure a minimal TTL so Redis won't keep stale presence
		exp = time.Second
	}
	return r.client.Set(ctx, r.key(p.SessionID), b, exp).Err()
}

func (r *RedisRepository) Get(ctx context.Context, sessionID string) (*Presence, error) {
	b, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p Presence
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RedisRepository) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func (r *RedisRepository) List(ctx context.Context) ([]*Presence, error) {
	var out []*Presence
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		b, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var p Presence
		if err := json.Unmarshal(b, &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}
