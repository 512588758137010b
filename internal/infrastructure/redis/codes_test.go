package redisinfra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-equity-auth/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func newStore(t *testing.T) (*CodeStore, *miniredis.Miniredis, time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	now := time.Now().UTC().Truncate(time.Second)
	mr.SetTime(now)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCodeStore(rdb, 5*time.Minute), mr, now
}

func record(now time.Time, code string) domain.VerificationRecord {
	return domain.VerificationRecord{
		Code:        code,
		ExpiresAt:   now.Add(10 * time.Minute),
		MaxAttempts: 3,
		IssuedAt:    now,
		Channel:     domain.ChannelEmail,
	}
}

func TestSetGet(t *testing.T) {
	s, mr, now := newStore(t)
	require.NoError(t, s.Set(ctx, "Ada@Example.com", record(now, "123456")))

	got, err := s.Get(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "123456", got.Code)
	assert.Equal(t, 3, got.MaxAttempts)
	assert.True(t, now.Add(10*time.Minute).Equal(got.ExpiresAt))
	assert.True(t, now.Equal(got.IssuedAt))

	assert.Equal(t, 15*time.Minute, mr.TTL(keyPrefix+"ada@example.com"))
}

func TestGet_Absent(t *testing.T) {
	s, _, _ := newStore(t)
	_, err := s.Get(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSet_OverwriteClearsAttempts(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "111111")))
	_, err := s.RecordAttempt(ctx, "a@b.co", "111111")
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "222222")))
	got, err := s.Get(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Code)
	assert.Equal(t, 0, got.Attempts)
}

func TestRecordAttemptAndReset(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "123456")))

	n, err := s.RecordAttempt(ctx, "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.RecordAttempt(ctx, "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.ResetAttempts(ctx, "a@b.co"))
	got, err := s.Get(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
}

func TestRecordAttempt_MissingDoesNotCreate(t *testing.T) {
	s, mr, _ := newStore(t)
	_, err := s.RecordAttempt(ctx, "ghost@b.co", "123456")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, mr.Exists(keyPrefix+"ghost@b.co"))

	require.NoError(t, s.ResetAttempts(ctx, "ghost@b.co"))
	assert.False(t, mr.Exists(keyPrefix+"ghost@b.co"))
}

func TestRecordAttempt_StaleCodeLeavesReissuedRecord(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "111111")))
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "222222")))

	_, err := s.RecordAttempt(ctx, "a@b.co", "111111")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := s.Get(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Attempts)
}

func TestRecordAttempt_Concurrent(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "123456")))

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.RecordAttempt(ctx, "a@b.co", "123456")
			if assert.NoError(t, err) {
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers)
}

func TestCompareAndDelete(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "123456")))

	ok, err := s.CompareAndDelete(ctx, "a@b.co", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "a@b.co", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Get(ctx, "a@b.co")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetentionExpiry(t *testing.T) {
	s, mr, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "123456")))

	mr.FastForward(12 * time.Minute)
	got, err := s.Get(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, domain.StateExpired, got.State(now.Add(12*time.Minute)))

	mr.FastForward(4 * time.Minute)
	_, err = s.Get(ctx, "a@b.co")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, _, now := newStore(t)
	require.NoError(t, s.Set(ctx, "a@b.co", record(now, "123456")))
	require.NoError(t, s.Delete(ctx, "a@b.co"))
	_, err := s.Get(ctx, "a@b.co")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
