// Package tiercache loads items from URLs or local providers and keeps them
// in a two-tier cache: an in-process memory tier in front of a file-system
// tier. Items are addressed by (cache key, processor identifier), so
// processed variants of one resource coexist; with CacheOriginalItem the
// raw payload is kept alongside them for local reprocessing.
package tiercache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/dkrylov/go-tier-cache/config"
	"github.com/dkrylov/go-tier-cache/internal/telemetry"
)

// Manager ties the retrieval pipeline together: cache lookup, original-item
// reprocessing, download (or provider load), processing and the write-back.
// One Manager owns its disk directory exclusively until its ctx is
// cancelled.
type Manager[T any] struct {
	cache      *Cache[T]
	downloader *Downloader
	defProc    Processor[T]
	reprocess  singleflight.Group
	counters   *telemetry.Counters
	latency    *telemetry.Latency
	logs       *telemetry.Logs
	logger     *slog.Logger
}

// New builds a Manager from cfg. defaultProcessor must carry the empty
// identifier: it owns the bare key space and represents plain decoding.
// All background work stops when ctx is cancelled.
func New[T any](
	ctx context.Context,
	cfg *config.Config,
	defaultProcessor Processor[T],
	serializer Serializer[T],
	costOf CostFunc[T],
	logger *slog.Logger,
) (*Manager[T], error) {
	return newManager(ctx, cfg, defaultProcessor, serializer, costOf, clock.New(), logger)
}

func newManager[T any](
	ctx context.Context,
	cfg *config.Config,
	defaultProcessor Processor[T],
	serializer Serializer[T],
	costOf CostFunc[T],
	clk clock.Clock,
	logger *slog.Logger,
) (*Manager[T], error) {
	if defaultProcessor == nil || defaultProcessor.Identifier() != "" {
		return nil, ErrInvalidProcessor
	}
	if logger == nil {
		logger = slog.Default()
	}

	counters := telemetry.NewCounters()
	latency := telemetry.NewLatency()

	cache, err := newCache(ctx, cfg, serializer, costOf, clk, logger, counters, latency)
	if err != nil {
		return nil, err
	}

	m := &Manager[T]{
		cache:      cache,
		downloader: newDownloader(cfg.Download, counters, logger),
		defProc:    defaultProcessor,
		counters:   counters,
		latency:    latency,
		logger:     logger,
	}
	if cfg.Telemetry.Enabled() {
		m.logs = telemetry.New(ctx, logger, counters, latency,
			cache.diskSizeOrZero, cfg.Telemetry.LogsInterval)
	}
	return m, nil
}

// Cache exposes the underlying two-tier store for direct operations
// (removal, cleanup, size inspection).
func (m *Manager[T]) Cache() *Cache[T] { return m.cache }

// Downloader exposes the download layer for direct, cache-free transfers.
func (m *Manager[T]) Downloader() *Downloader { return m.downloader }

// Close stops the telemetry loop. The stores and workers are bound to the
// ctx passed to New and stop with it.
func (m *Manager[T]) Close() error {
	if m.logs != nil {
		return m.logs.Close()
	}
	return nil
}

// Retrieve returns the item for src, preferring the caches.
//
// The order is: memory, then disk (for the requested processor variant),
// then the stored original reprocessed locally, then a fresh fetch. Options
// bend it: ForceRefresh skips straight to the fetch, OnlyFromCache turns a
// full miss into ErrItemNotExisting, FromMemoryCacheOrRefresh refetches on
// a memory miss without consulting disk.
//
// A freshly fetched item is stored on the way out. Without WaitForCache the
// disk half of that store completes in the background; with it, a disk
// store failure is returned as the error while the result still carries
// the usable value.
func (m *Manager[T]) Retrieve(ctx context.Context, src Source, opts Options[T]) (RetrievalResult[T], error) {
	var res RetrievalResult[T]
	if src == nil || src.CacheKey() == "" {
		return res, ErrEmptySource
	}
	key := src.CacheKey()
	if opts.Processor == nil {
		opts.Processor = m.defProc
	}

	if !opts.ForceRefresh {
		item, ct, err := m.cache.Retrieve(ctx, key, opts)
		if err != nil {
			return res, err
		}
		if ct.Cached() {
			return RetrievalResult[T]{Value: item, CacheType: ct, Source: src}, nil
		}

		if !opts.FromMemoryCacheOrRefresh {
			if item, ok, err := m.retrieveFromOriginal(ctx, key, opts); err != nil {
				return res, err
			} else if ok {
				return RetrievalResult[T]{Value: item, CacheType: CacheTypeDisk, Source: src}, nil
			}
		}
	}

	if opts.OnlyFromCache {
		return res, fmt.Errorf("%w: key %q", ErrItemNotExisting, key)
	}

	loaded, err := m.Load(ctx, src, opts)
	if err != nil {
		return res, err
	}

	res = RetrievalResult[T]{Value: loaded.Value, CacheType: CacheTypeNone, Source: src}
	stored := m.cache.Store(ctx, key, loaded.Value, loaded.Original, opts)
	if opts.WaitForCache && stored.Disk != nil {
		return res, stored.Disk
	}
	return res, nil
}

// retrieveFromOriginal serves a non-default processor variant by
// reprocessing the raw payload a CacheOriginalItem store left under the
// bare key, avoiding the network. The produced variant is cached like a
// fetched one. Concurrent identical reprocess requests collapse into one
// execution.
func (m *Manager[T]) retrieveFromOriginal(ctx context.Context, key string, opts Options[T]) (item T, ok bool, err error) {
	var zero T
	id := opts.processorID()
	if id == "" {
		return zero, false, nil
	}

	data, found, err := m.cache.OriginalData(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}

	v, err, _ := m.reprocess.Do(ComputedKey(key, id), func() (any, error) {
		item, err := opts.Processor.Process(data, opts.Extra)
		if err != nil {
			return nil, fmt.Errorf("%w: processor %q on key %q: %w", ErrProcessingFailed, id, key, err)
		}
		return item, nil
	})
	if err != nil {
		return zero, false, err
	}
	item = v.(T)

	// the original is already on disk; do not write it again
	storeOpts := opts
	storeOpts.CacheOriginalItem = false
	stored := m.cache.Store(ctx, key, item, nil, storeOpts)
	if opts.WaitForCache && stored.Disk != nil {
		return zero, false, stored.Disk
	}
	return item, true, nil
}

// Load fetches and processes src without touching the caches. URL sources
// go through the coalescing downloader; provider sources are called
// directly.
func (m *Manager[T]) Load(ctx context.Context, src Source, opts Options[T]) (LoadingResult[T], error) {
	var res LoadingResult[T]
	if opts.Processor == nil {
		opts.Processor = m.defProc
	}

	var (
		data []byte
		url  string
		err  error
	)
	switch s := src.(type) {
	case URLSource:
		url = s.URL
		data, err = m.downloader.Download(ctx, url)
	case *URLSource:
		url = s.URL
		data, err = m.downloader.Download(ctx, url)
	case DataProvider:
		data, err = s.Data(ctx)
	default:
		return res, fmt.Errorf("%w: %T", ErrEmptySource, src)
	}
	if err != nil {
		return res, err
	}

	item, err := opts.Processor.Process(data, opts.Extra)
	if err != nil {
		return res, fmt.Errorf("%w: processor %q on key %q: %w",
			ErrProcessingFailed, opts.processorID(), src.CacheKey(), err)
	}
	return LoadingResult[T]{Value: item, URL: url, Original: data}, nil
}
