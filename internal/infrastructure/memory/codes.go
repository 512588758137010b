// Package memory holds the in-process verification code store. It is the
// default store for single-instance deployments and the reference
// implementation used by tests.
package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-equity-auth/internal/domain"
	"github.com/go-equity-auth/internal/metrics"
	"go.uber.org/zap"
)

// CodeStore is a mutex-guarded map of verification records keyed by
// normalized email. Records are dropped retention after they expire, lazily
// on read and in bulk by Run.
type CodeStore struct {
	mu        sync.Mutex
	records   map[string]*domain.VerificationRecord
	retention time.Duration
	capacity  int
	log       *zap.Logger
	now       func() time.Time
}

// NewCodeStore returns an empty store. A capacity of zero means unbounded.
func NewCodeStore(retention time.Duration, capacity int, log *zap.Logger) *CodeStore {
	return &CodeStore{
		records:   make(map[string]*domain.VerificationRecord),
		retention: retention,
		capacity:  capacity,
		log:       log,
		now:       time.Now,
	}
}

func (s *CodeStore) Set(_ context.Context, email string, rec domain.VerificationRecord) error {
	key := domain.NormalizeEmail(email)
	rec.Email = key

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[key]; !exists && s.capacity > 0 && len(s.records) >= s.capacity {
		s.evictOldestLocked(len(s.records) - s.capacity + 1)
	}
	s.records[key] = &rec
	metrics.CodeStoreSize.Set(float64(len(s.records)))
	return nil
}

// Get returns a copy so callers cannot mutate stored state.
func (s *CodeStore) Get(_ context.Context, email string) (*domain.VerificationRecord, error) {
	key := domain.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(key)
	if !ok {
		return nil, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *CodeStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, domain.NormalizeEmail(email))
	metrics.CodeStoreSize.Set(float64(len(s.records)))
	return nil
}

func (s *CodeStore) ResetAttempts(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.liveLocked(domain.NormalizeEmail(email)); ok {
		rec.Attempts = 0
	}
	return nil
}

func (s *CodeStore) RecordAttempt(_ context.Context, email, code string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(domain.NormalizeEmail(email))
	if !ok || subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return 0, fmt.Errorf("code not found: %w", domain.ErrNotFound)
	}
	rec.Attempts++
	return rec.Attempts, nil
}

func (s *CodeStore) CompareAndDelete(_ context.Context, email, code string) (bool, error) {
	key := domain.NormalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.liveLocked(key)
	if !ok || subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		return false, nil
	}
	delete(s.records, key)
	metrics.CodeStoreSize.Set(float64(len(s.records)))
	return true, nil
}

// Len reports the number of records currently held, including ones pending
// sweep.
func (s *CodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Run sweeps stale records every interval until ctx is cancelled.
func (s *CodeStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("swept verification codes", zap.Int("count", n))
			}
		}
	}
}

// Sweep removes every record older than its expiry plus retention and
// returns how many were removed.
func (s *CodeStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for key, rec := range s.records {
		if s.staleAt(rec, now) {
			delete(s.records, key)
			n++
		}
	}
	if n > 0 {
		metrics.CodeStoreEvictTotal.WithLabelValues("expired").Add(float64(n))
	}
	metrics.CodeStoreSize.Set(float64(len(s.records)))
	return n
}

// liveLocked returns the record for key, deleting it first if stale.
func (s *CodeStore) liveLocked(key string) (*domain.VerificationRecord, bool) {
	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	if s.staleAt(rec, s.now()) {
		delete(s.records, key)
		metrics.CodeStoreEvictTotal.WithLabelValues("expired").Inc()
		return nil, false
	}
	return rec, true
}

func (s *CodeStore) staleAt(rec *domain.VerificationRecord, now time.Time) bool {
	return !now.Before(rec.ExpiresAt.Add(s.retention))
}

// evictOldestLocked drops the n records with the earliest issue time.
func (s *CodeStore) evictOldestLocked(n int) {
	type kv struct {
		key string
		at  time.Time
	}
	all := make([]kv, 0, len(s.records))
	for key, rec := range s.records {
		all = append(all, kv{key: key, at: rec.IssuedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < n && i < len(all); i++ {
		delete(s.records, all[i].key)
		s.log.Warn("verification code evicted (capacity pressure)", zap.String("email", all[i].key))
	}
	metrics.CodeStoreEvictTotal.WithLabelValues("capacity").Add(float64(n))
}
