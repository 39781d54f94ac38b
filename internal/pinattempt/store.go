// Package pinattempt counts PIN attempts per appointment and mode, and
// generates and hashes the PINs themselves.
package pinattempt

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

// Store keeps attempt counters. Counters never expire; only Reset clears them.
//
// A check reserves an attempt before comparing the PIN and releases it when
// the PIN matches, so parallel guesses cannot exceed the limit.
type Store interface {
	Get(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error)
	Reserve(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error)
	Release(ctx context.Context, appointmentID int64, mode model.PinMode) error
	Reset(ctx context.Context, appointmentID int64, mode model.PinMode) error
}

func key(appointmentID int64, mode model.PinMode) string {
	return "pin_attempts:" + strconv.FormatInt(appointmentID, 10) + ":" + string(mode)
}

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error) {
	n, err := s.client.Get(ctx, key(appointmentID, mode)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get pin attempts: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Reserve(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error) {
	n, err := s.client.Incr(ctx, key(appointmentID, mode)).Result()
	if err != nil {
		return 0, fmt.Errorf("reserve pin attempt: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Release(ctx context.Context, appointmentID int64, mode model.PinMode) error {
	if err := s.client.Decr(ctx, key(appointmentID, mode)).Err(); err != nil {
		return fmt.Errorf("release pin attempt: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, appointmentID int64, mode model.PinMode) error {
	if err := s.client.Del(ctx, key(appointmentID, mode)).Err(); err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int)}
}

func (s *MemoryStore) Get(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key(appointmentID, mode)], nil
}

func (s *MemoryStore) Reserve(ctx context.Context, appointmentID int64, mode model.PinMode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(appointmentID, mode)
	s.counters[k]++
	return s.counters[k], nil
}

func (s *MemoryStore) Release(ctx context.Context, appointmentID int64, mode model.PinMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(appointmentID, mode)
	if s.counters[k] > 0 {
		s.counters[k]--
	}
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, appointmentID int64, mode model.PinMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key(appointmentID, mode))
	return nil
}
