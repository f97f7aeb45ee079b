package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisBindAttempts = 3

// RedisSessionStore keeps sessions in Redis so several instances share
// them. Tokens are stored by SHA-256 digest and expire with the token.
type RedisSessionStore struct {
	client *redis.Client
	mode   SessionMode
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(client *redis.Client, mode SessionMode, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "mailgate:"
	}
	return &RedisSessionStore{client: client, mode: mode, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) tokenKey(digest string) string { return s.prefix + "session:" + digest }

func (s *RedisSessionStore) userKey(username string) string { return s.prefix + "principal:" + username }

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *RedisSessionStore) Bind(ctx context.Context, username, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	d := digest(token)
	if s.mode == SessionMulti {
		return s.client.Set(ctx, s.tokenKey(d), username, ttl).Err()
	}

	userKey := s.userKey(username)
	bind := func(tx *redis.Tx) error {
		prev, err := tx.Get(ctx, userKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if prev != "" && prev != d {
				p.Del(ctx, s.tokenKey(prev))
			}
			p.Set(ctx, s.tokenKey(d), username, ttl)
			p.Set(ctx, userKey, d, ttl)
			return nil
		})
		return err
	}
	for i := 0; i < redisBindAttempts; i++ {
		err := s.client.Watch(ctx, bind, userKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("bind session for %s: %w", username, redis.TxFailedErr)
}

func (s *RedisSessionStore) Lookup(ctx context.Context, token string) (string, error) {
	username, err := s.client.Get(ctx, s.tokenKey(digest(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	return username, nil
}
