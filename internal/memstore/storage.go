// Package memstore is the in-process tier: a bounded key-value store with
// cost accounting, lazy per-entry expiration and a periodic background
// sweep. Reads through Value slide the expiration window forward; reads
// through IsCached do not. Expired entries turn invisible immediately but
// stay resident until the sweeper (or an explicit RemoveExpired) collects
// them.
package memstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkrylov/go-tier-cache/expiry"
)

// DefaultCleanInterval is used when Config.CleanInterval is not set.
const DefaultCleanInterval = 2 * time.Minute

// DefaultExpiration is used when Config.Expiration is not set.
var DefaultExpiration = expiry.After(5 * time.Minute)

// CostFunc reports the resident cost of a value, in whatever unit the
// configured TotalCostLimit is expressed in (typically bytes).
type CostFunc[T any] func(value T) int64

type Config struct {
	// TotalCostLimit bounds the summed CostFunc of resident entries. 0 = unlimited.
	TotalCostLimit int64
	// CountLimit bounds the number of resident entries. 0 = unlimited.
	CountLimit int
	// Expiration applies to stores that carry no per-call policy.
	Expiration expiry.Expiration
	// CleanInterval paces the background expired-entry sweep.
	CleanInterval time.Duration
}

// Storage respects the ctx it was built with: the sweeper stops when the
// ctx is cancelled. Safe for concurrent use.
type Storage[T any] struct {
	mu     sync.RWMutex
	box    *box[T]
	def    expiry.Expiration
	costOf CostFunc[T]
	clk    clock.Clock
	logger *slog.Logger
}

func New[T any](ctx context.Context, cfg Config, costOf CostFunc[T], clk clock.Clock, logger *slog.Logger) *Storage[T] {
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.CleanInterval
	if interval <= 0 {
		interval = DefaultCleanInterval
	}

	s := &Storage[T]{
		box:    newBox[T](cfg.TotalCostLimit, cfg.CountLimit),
		def:    cfg.Expiration.Or(DefaultExpiration),
		costOf: costOf,
		clk:    clk,
		logger: logger,
	}
	go s.sweep(ctx, interval)

	return s
}

// Store inserts or overwrites under the default expiration. It cannot fail:
// limit overflow resolves by eviction, not by rejecting the store.
func (s *Storage[T]) Store(key string, value T) {
	s.StoreWith(key, value, expiry.Expiration{})
}

// StoreWith inserts or overwrites with a per-call expiration policy.
func (s *Storage[T]) StoreWith(key string, value T, exp expiry.Expiration) {
	policy := exp.Or(s.def)
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.put(&slot[T]{
		key:       key,
		value:     value,
		cost:      s.costOf(value),
		policy:    policy,
		estimated: policy.EstimatedAt(now),
	})
}

// Value returns the live value for key and, as a side effect, pushes its
// expiration forward by the policy's window from now ("sliding expiration").
// An interval policy re-applies its full interval; an absolute date only
// gets the remainder, so a touched entry never outlives its date. Absent or
// expired entries report !ok; an expired entry is not collected here, it
// merely becomes invisible.
func (s *Storage[T]) Value(key string) (value T, ok bool) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.box.get(key)
	if !ok || sl.expired(now) {
		var zero T
		return zero, false
	}
	if !sl.policy.IsNever() {
		sl.estimated = now.Add(sl.policy.TimeToLiveFrom(now))
	}
	s.box.touch(key)
	return sl.value, true
}

// IsCached reports whether key is resident and unexpired. It never extends
// the expiration and is not a guarantee that a subsequent Value succeeds: a
// concurrent eviction may win the race.
func (s *Storage[T]) IsCached(key string) bool {
	now := s.clk.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.box.get(key)
	return ok && !sl.expired(now)
}

func (s *Storage[T]) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.remove(key)
}

func (s *Storage[T]) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.clear()
}

// RemoveExpired evicts every entry whose estimated expiration has passed
// and returns their keys. The background sweeper calls this on its
// interval; calling it manually as well is harmless, the two commute.
func (s *Storage[T]) RemoveExpired() []string {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	s.box.walk(func(sl *slot[T]) bool {
		if sl.expired(now) {
			s.box.remove(sl.key)
			removed = append(removed, sl.key)
		}
		return true
	})
	return removed
}

// Contains reports raw residency, expired or not. Sweep tests rely on the
// distinction between "invisible" and "collected".
func (s *Storage[T]) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.box.get(key)
	return ok
}

func (s *Storage[T]) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.box.len()
}

func (s *Storage[T]) TotalCost() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.box.totalCost()
}

// SetLimits propagates new bounds to the container immediately.
func (s *Storage[T]) SetLimits(totalCostLimit int64, countLimit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.setLimits(totalCostLimit, countLimit)
}

func (s *Storage[T]) sweep(ctx context.Context, interval time.Duration) {
	ticker := s.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.RemoveExpired(); len(removed) > 0 && s.logger != nil {
				s.logger.Debug("memory sweep", "removed", len(removed))
			}
		}
	}
}
