package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints in redis, one JSON blob per session under a
// prefixed key. The lease is a SETNX key with a TTL so a crashed holder
// cannot wedge the session forever.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	leaseTTL time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(config StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "stagecraft"
	}
	ttl := config.LeaseTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, prefix: prefix, leaseTTL: ttl}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:checkpoint:%s", s.prefix, sessionID)
}

func (s *RedisStore) leaseKey(sessionID string) string {
	return fmt.Sprintf("%s:lease:%s", s.prefix, sessionID)
}

func (s *RedisStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(cp.SessionID), data, 0).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	pattern := s.key("*")
	cut := s.key("")
	var ids []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), cut))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *RedisStore) Acquire(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	ok, err := s.client.SetNX(ctx, s.leaseKey(sessionID), time.Now().Format(time.RFC3339), s.leaseTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.leaseKey(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
