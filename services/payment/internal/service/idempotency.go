package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// idempotencyKeyPrefix — префикс ключей Idempotency-Key в Redis.
	idempotencyKeyPrefix = "payment:idempotency:"

	// idempotencyTTL — время жизни ключа.
	idempotencyTTL = 24 * time.Hour

	// idempotencyProcessing — значение ключа, пока платёж создаётся.
	idempotencyProcessing = "processing"
)

// IdempotencyStore защищает создание платежа от повторной отправки запроса.
type IdempotencyStore interface {
	// Acquire захватывает ключ. false — ключ уже есть, existing содержит
	// ID платежа или пусто, если первый запрос ещё выполняется.
	Acquire(ctx context.Context, key string) (acquired bool, existing string, err error)

	// Complete сохраняет ID созданного платежа.
	Complete(ctx context.Context, key, paymentID string) error

	// Abort удаляет ключ, чтобы запрос можно было повторить.
	Abort(ctx context.Context, key string) error
}

type redisIdempotency struct {
	rdb *redis.Client
}

// NewRedisIdempotency создаёт IdempotencyStore на Redis (SETNX + TTL).
func NewRedisIdempotency(rdb *redis.Client) IdempotencyStore {
	return &redisIdempotency{rdb: rdb}
}

func (s *redisIdempotency) Acquire(ctx context.Context, key string) (bool, string, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+key, idempotencyProcessing, idempotencyTTL).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := s.rdb.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", err
	}
	if val == idempotencyProcessing {
		return false, "", nil
	}
	return false, val, nil
}

func (s *redisIdempotency) Complete(ctx context.Context, key, paymentID string) error {
	return s.rdb.Set(ctx, idempotencyKeyPrefix+key, paymentID, idempotencyTTL).Err()
}

func (s *redisIdempotency) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyKeyPrefix+key).Err()
}
