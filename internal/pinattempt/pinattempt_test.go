package pinattempt

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zakariya2002/autisme-connect-sub000/internal/model"
)

func TestMemoryStoreCountsPerMode(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, err := s.Reserve(ctx, 1, model.PinModeStart)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = s.Reserve(ctx, 1, model.PinModeStart)
	assert.Equal(t, 2, n)

	complete, _ := s.Get(ctx, 1, model.PinModeComplete)
	assert.Equal(t, 0, complete)

	require.NoError(t, s.Release(ctx, 1, model.PinModeStart))
	start, _ := s.Get(ctx, 1, model.PinModeStart)
	assert.Equal(t, 1, start)

	require.NoError(t, s.Reset(ctx, 1, model.PinModeStart))
	start, _ = s.Get(ctx, 1, model.PinModeStart)
	assert.Equal(t, 0, start)
}

func TestMemoryStoreReserveIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Reserve(context.Background(), 9, model.PinModeComplete)
		}()
	}
	wg.Wait()

	n, _ := s.Get(context.Background(), 9, model.PinModeComplete)
	assert.Equal(t, 100, n)
}

func TestGenerate(t *testing.T) {
	re := regexp.MustCompile(`^\d{4}$`)
	for i := 0; i < 200; i++ {
		pin, err := Generate()
		require.NoError(t, err)
		require.Regexp(t, re, pin)
	}
}

func TestHasherMatches(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("0042")
	require.NoError(t, err)
	assert.NotEqual(t, "0042", hash)

	ok, err := h.Matches(hash, "0042")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Matches(hash, "0043")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.Matches("not-a-hash", "0042")
	assert.Error(t, err)
}
