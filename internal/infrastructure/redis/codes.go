// Package redisinfra keeps verification records in Redis so every API
// instance sees the same code state.
package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-equity-auth/internal/config"
	"github.com/go-equity-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "2fa:code:"

// Hash fields.
const (
	fieldEmail       = "email"
	fieldCode        = "code"
	fieldExpiresAt   = "expires_at"
	fieldAttempts    = "attempts"
	fieldMaxAttempts = "max_attempts"
	fieldIssuedAt    = "issued_at"
	fieldChannel     = "channel"
)

var (
	// Returns the new attempt count, or -1 when the record is gone or holds
	// another code.
	recordAttemptScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code') ~= ARGV[1] then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

	resetAttemptsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  redis.call('HSET', KEYS[1], 'attempts', 0)
end
return 1
`)

	compareAndDeleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'code') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// NewClient builds a go-redis client from configuration.
func NewClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// CodeStore stores one hash per email. Keys expire retention after the
// code does.
type CodeStore struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

func NewCodeStore(rdb redis.UniversalClient, retention time.Duration) *CodeStore {
	return &CodeStore{rdb: rdb, retention: retention}
}

func key(email string) string {
	return keyPrefix + domain.NormalizeEmail(email)
}

func (s *CodeStore) Set(ctx context.Context, email string, rec domain.VerificationRecord) error {
	k := key(email)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, map[string]interface{}{
			fieldEmail:       domain.NormalizeEmail(email),
			fieldCode:        rec.Code,
			fieldExpiresAt:   rec.ExpiresAt.UnixNano(),
			fieldAttempts:    rec.Attempts,
			fieldMaxAttempts: rec.MaxAttempts,
			fieldIssuedAt:    rec.IssuedAt.UnixNano(),
			fieldChannel:     rec.Channel,
		})
		p.ExpireAt(ctx, k, rec.ExpiresAt.Add(s.retention))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set code: %w", err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, email string) (*domain.VerificationRecord, error) {
	h, err := s.rdb.HGetAll(ctx, key(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get code: %w", err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return decode(h)
}

func (s *CodeStore) Delete(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, key(email)).Err(); err != nil {
		return fmt.Errorf("redis delete code: %w", err)
	}
	return nil
}

func (s *CodeStore) ResetAttempts(ctx context.Context, email string) error {
	if err := resetAttemptsScript.Run(ctx, s.rdb, []string{key(email)}).Err(); err != nil {
		return fmt.Errorf("redis reset attempts: %w", err)
	}
	return nil
}

func (s *CodeStore) RecordAttempt(ctx context.Context, email, code string) (int, error) {
	n, err := recordAttemptScript.Run(ctx, s.rdb, []string{key(email)}, code).Int()
	if err != nil {
		return 0, fmt.Errorf("redis record attempt: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	return n, nil
}

func (s *CodeStore) CompareAndDelete(ctx context.Context, email, code string) (bool, error) {
	n, err := compareAndDeleteScript.Run(ctx, s.rdb, []string{key(email)}, code).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare and delete: %w", err)
	}
	return n == 1, nil
}

func decode(h map[string]string) (*domain.VerificationRecord, error) {
	var errs []error
	num := func(field string) int64 {
		v, err := strconv.ParseInt(h[field], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", field, err))
		}
		return v
	}
	rec := &domain.VerificationRecord{
		Email:       h[fieldEmail],
		Code:        h[fieldCode],
		ExpiresAt:   time.Unix(0, num(fieldExpiresAt)).UTC(),
		Attempts:    int(num(fieldAttempts)),
		MaxAttempts: int(num(fieldMaxAttempts)),
		IssuedAt:    time.Unix(0, num(fieldIssuedAt)).UTC(),
		Channel:     h[fieldChannel],
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("decode code record: %w", err)
	}
	return rec, nil
}
