package tiercache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/dkrylov/go-tier-cache/config"
	"github.com/dkrylov/go-tier-cache/expiry"
	"github.com/dkrylov/go-tier-cache/internal/diskstore"
	"github.com/dkrylov/go-tier-cache/internal/memstore"
	"github.com/dkrylov/go-tier-cache/internal/telemetry"
)

// ioQueueDepth bounds the pending disk operations of one cache.
const ioQueueDepth = 128

// Cache is the two-tier store: a memory tier consulted first and a disk
// tier behind it. It owns nothing about fetching; Manager composes a Cache
// with a download layer.
//
// All disk operations of one Cache run on a single internal worker, so a
// store followed by a retrieve on the same cache observes the store even
// when the write was requested in the background. The worker stops when
// the ctx passed to NewCache is cancelled.
type Cache[T any] struct {
	// ctx is the construction context; once it ends the worker is gone and
	// every disk operation reports its error instead of waiting.
	ctx        context.Context
	mem        *memstore.Storage[T]
	disk       *diskstore.Storage
	serializer Serializer[T]
	clk        clock.Clock
	logger     *slog.Logger
	counters   *telemetry.Counters
	latency    *telemetry.Latency
	ioCh       chan func()

	obsMu     sync.RWMutex
	observers []func(removed []string)
}

// NewCache builds both tiers from cfg and takes exclusive ownership of the
// disk directory. Background work (memory sweep, disk janitor, the disk
// worker) stops when ctx is cancelled; the directory lock is released then
// too.
func NewCache[T any](
	ctx context.Context,
	cfg *config.Config,
	serializer Serializer[T],
	costOf CostFunc[T],
	logger *slog.Logger,
) (*Cache[T], error) {
	return newCache(ctx, cfg, serializer, costOf, clock.New(), logger,
		telemetry.NewCounters(), telemetry.NewLatency())
}

func newCache[T any](
	ctx context.Context,
	cfg *config.Config,
	serializer Serializer[T],
	costOf CostFunc[T],
	clk clock.Clock,
	logger *slog.Logger,
	counters *telemetry.Counters,
	latency *telemetry.Latency,
) (*Cache[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.AdjustConfig()
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache[T]{
		ctx:        ctx,
		serializer: serializer,
		clk:        clk,
		logger:     logger,
		counters:   counters,
		latency:    latency,
		ioCh:       make(chan func(), ioQueueDepth),
	}

	c.mem = memstore.New(ctx, memstore.Config{
		TotalCostLimit: cfg.Memory.TotalCostLimit,
		CountLimit:     cfg.Memory.CountLimit,
		Expiration:     expiry.After(cfg.Memory.DefaultExpiration),
		CleanInterval:  cfg.Memory.CleanInterval,
	}, memstore.CostFunc[T](costOf), clk, logger)

	disk, err := diskstore.New(ctx, diskstore.Config{
		Name:          cfg.Disk.Name,
		Directory:     cfg.Disk.Directory,
		SizeLimit:     cfg.Disk.SizeLimit,
		Expiration:    expiry.After(cfg.Disk.DefaultExpiration),
		PathExtension: cfg.Disk.PathExtension,
		UsesPlainName: cfg.Disk.UsesPlainName,
		TouchRate:     cfg.Disk.TouchRate,
		CleanInterval: cfg.Disk.CleanInterval,
		OnCleanup:     c.notifyCleanup,
	}, clk, logger)
	if err != nil {
		return nil, err
	}
	c.disk = disk

	go c.ioWorker(ctx)
	return c, nil
}

// Store writes item to the memory tier and, unless opts say otherwise, to
// the disk tier. The memory half cannot fail. The disk half serializes the
// item (preferring original when the serializer supports it) and writes it
// through the disk worker: with opts.WaitForCache the call waits for that
// write and the result carries its error, otherwise the write completes in
// the background and a failure is logged and counted.
//
// With opts.CacheOriginalItem and a non-default processor, the raw original
// payload is additionally stored on disk under the bare key, so a later
// retrieval with a different processor can reprocess locally.
func (c *Cache[T]) Store(ctx context.Context, key string, item T, original []byte, opts Options[T]) OperationResults {
	computed := ComputedKey(key, opts.processorID())

	c.mem.StoreWith(computed, item, opts.MemoryExpiration)

	res := OperationResults{}
	if opts.MemoryCacheOnly {
		return res
	}

	// The serializer may prefer original over re-encoding, which is only
	// correct when the item came straight from it (default processor). A
	// processed variant serializes from the item; its original goes to the
	// bare key below.
	serOriginal := original
	if opts.processorID() != "" {
		serOriginal = nil
	}
	data, err := c.serializer.Data(item, serOriginal)
	if err != nil {
		res.Disk = fmt.Errorf("%w: key %q: %w", ErrCannotSerializeItem, key, err)
		return res
	}

	write := func() error {
		return c.latency.Observe("disk_write", func() error {
			if err := c.disk.Store(computed, data, opts.DiskExpiration); err != nil {
				return err
			}
			if opts.CacheOriginalItem && original != nil && opts.processorID() != "" {
				return c.disk.Store(key, original, opts.DiskExpiration)
			}
			return nil
		})
	}

	if opts.WaitForCache {
		res.Disk = c.runIO(ctx, write)
		return res
	}
	c.spawnIO(computed, write)
	return res
}

// Retrieve looks key up in the memory tier, then the disk tier. A disk hit
// is deserialized and promoted back into the memory tier. A full miss is
// (zero, CacheTypeNone, nil); a miss is not an error.
func (c *Cache[T]) Retrieve(ctx context.Context, key string, opts Options[T]) (T, CacheType, error) {
	var zero T
	computed := ComputedKey(key, opts.processorID())

	if item, ok := c.mem.Value(computed); ok {
		c.counters.MemHit()
		return item, CacheTypeMemory, nil
	}
	c.counters.MemMiss()

	if opts.FromMemoryCacheOrRefresh {
		return zero, CacheTypeNone, nil
	}

	var (
		data []byte
		ok   bool
	)
	err := c.runIO(ctx, func() error {
		return c.latency.Observe("disk_read", func() error {
			var e error
			data, ok, e = c.disk.Value(computed, c.clk.Now())
			return e
		})
	})
	if err != nil {
		return zero, CacheTypeNone, err
	}
	if !ok {
		c.counters.DiskMiss()
		return zero, CacheTypeNone, nil
	}
	c.counters.DiskHit()

	item, err := c.serializer.Value(data, opts.Extra)
	if err != nil {
		return zero, CacheTypeNone, fmt.Errorf("%w: key %q: %w", ErrCannotDeserializeItem, key, err)
	}

	// promote to memory only; the disk copy is already in place
	c.mem.StoreWith(computed, item, opts.MemoryExpiration)
	return item, CacheTypeDisk, nil
}

// CachedType reports which tier currently holds a live entry for the
// (key, processor) pair without loading it and without extending its
// lifetime. Disk enumeration errors count as a miss.
func (c *Cache[T]) CachedType(key, processorID string) CacheType {
	computed := ComputedKey(key, processorID)
	if c.mem.IsCached(computed) {
		return CacheTypeMemory
	}
	if ok, err := c.disk.IsCached(computed, c.clk.Now()); err == nil && ok {
		return CacheTypeDisk
	}
	return CacheTypeNone
}

// Remove drops the (key, processor) entry from the memory tier and, unless
// opts.MemoryCacheOnly, from the disk tier.
func (c *Cache[T]) Remove(ctx context.Context, key string, opts Options[T]) error {
	computed := ComputedKey(key, opts.processorID())
	c.mem.Remove(computed)
	if opts.MemoryCacheOnly {
		return nil
	}
	return c.runIO(ctx, func() error {
		return c.disk.Remove(computed)
	})
}

// OriginalData returns the raw payload stored under the bare key by a
// CacheOriginalItem store, if it is still live.
func (c *Cache[T]) OriginalData(ctx context.Context, key string) (data []byte, ok bool, err error) {
	err = c.runIO(ctx, func() error {
		var e error
		data, ok, e = c.disk.Value(key, c.clk.Now())
		return e
	})
	return data, ok, err
}

// ClearMemoryCache drops every memory entry. Disk entries are untouched.
func (c *Cache[T]) ClearMemoryCache() {
	c.mem.RemoveAll()
}

// ClearDiskCache deletes every cache file. The directory and its lock stay.
func (c *Cache[T]) ClearDiskCache(ctx context.Context) error {
	return c.runIO(ctx, c.disk.RemoveAll)
}

// CleanExpiredMemoryCache collects expired memory entries now, without
// waiting for the background sweep, and returns their computed keys.
func (c *Cache[T]) CleanExpiredMemoryCache() []string {
	return c.mem.RemoveExpired()
}

// CleanExpiredDiskCache runs one janitor pass by hand: expired entries
// first, then the size sweep. Returns the base names of removed files and
// notifies the OnDiskCleanup observers when anything was removed.
func (c *Cache[T]) CleanExpiredDiskCache(ctx context.Context) ([]string, error) {
	var removed []string
	err := c.runIO(ctx, func() error {
		expired, err := c.disk.RemoveExpiredValues(c.clk.Now())
		if err != nil {
			return err
		}
		exceeded, err := c.disk.RemoveSizeExceededValues()
		if err != nil {
			return err
		}
		removed = append(expired, exceeded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(removed))
	for _, p := range removed {
		names = append(names, filepath.Base(p))
	}
	if len(names) > 0 {
		c.notifyCleanup(names)
	}
	return names, nil
}

// MemoryCost reports the summed cost of resident memory entries.
func (c *Cache[T]) MemoryCost() int64 { return c.mem.TotalCost() }

// MemoryCount reports the number of resident memory entries, expired
// not-yet-swept ones included.
func (c *Cache[T]) MemoryCount() int { return c.mem.Count() }

// SetMemoryLimits replaces the memory tier's cost and count bounds live,
// trimming immediately when the new bounds are tighter.
func (c *Cache[T]) SetMemoryLimits(totalCostLimit int64, countLimit int) {
	c.mem.SetLimits(totalCostLimit, countLimit)
}

// DiskStorageSize reports the summed size of the cache files on disk.
func (c *Cache[T]) DiskStorageSize(ctx context.Context) (int64, error) {
	var size int64
	err := c.runIO(ctx, func() error {
		var e error
		size, e = c.disk.TotalSize()
		return e
	})
	return size, err
}

// DiskDirectory returns the directory the disk tier owns.
func (c *Cache[T]) DiskDirectory() string { return c.disk.Directory() }

// DiskFileName returns the file name a computed key is stored under.
func (c *Cache[T]) DiskFileName(computedKey string) string {
	return c.disk.FileName(computedKey)
}

// OnDiskCleanup registers fn to receive the base names of files removed by
// a cleanup pass, scheduled or manual. fn must not block.
func (c *Cache[T]) OnDiskCleanup(fn func(removed []string)) {
	c.obsMu.Lock()
	c.observers = append(c.observers, fn)
	c.obsMu.Unlock()
}

func (c *Cache[T]) notifyCleanup(removed []string) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, fn := range c.observers {
		fn(removed)
	}
}

// diskSizeOrZero feeds the telemetry loop; errors there only cost a stat.
func (c *Cache[T]) diskSizeOrZero() int64 {
	size, err := c.disk.TotalSize()
	if err != nil {
		return 0
	}
	return size
}

// runIO executes fn on the disk worker and waits for it, bailing out when
// the caller's ctx or the instance ctx ends first. A bail-out after
// submission leaves fn running; its result is discarded into the buffered
// channel. After the instance ctx ends the worker no longer drains the
// queue, so submissions fail instead of parking forever.
func (c *Cache[T]) runIO(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case c.ioCh <- func() { done <- fn() }:
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawnIO executes fn on the disk worker without waiting. Failures are
// logged and counted, never surfaced; a write requested after shutdown is
// dropped the same way.
func (c *Cache[T]) spawnIO(computedKey string, fn func() error) {
	wrapped := func() {
		if err := fn(); err != nil {
			c.counters.StoreFailure()
			c.logger.Error("background disk write failed",
				slog.String("computed_key", computedKey),
				slog.Any("error", err))
		}
	}
	select {
	case c.ioCh <- wrapped:
	case <-c.ctx.Done():
		c.counters.StoreFailure()
		c.logger.Error("background disk write dropped, cache stopped",
			slog.String("computed_key", computedKey))
	}
}

func (c *Cache[T]) ioWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.ioCh:
			fn()
		}
	}
}
