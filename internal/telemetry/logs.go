// Package telemetry collects hit/miss/download counters and latency
// quantiles and periodically logs them. It is observation only: nothing in
// the cache depends on it for correctness.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/dkrylov/go-tier-cache/internal/shared/bytes"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	counters *Counters
	latency  *Latency
	diskSize func() int64
	interval time.Duration
}

// New starts the periodic telemetry log loop. interval <= 0 disables it (the
// counters keep accumulating, they just are not logged). diskSize may be nil.
func New(
	ctx context.Context,
	logger *slog.Logger,
	counters *Counters,
	latency *Latency,
	diskSize func() int64,
	interval time.Duration,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	l := &Logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		counters: counters,
		latency:  latency,
		diskSize: diskSize,
		interval: interval,
	}
	if interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) Interval() time.Duration { return l.interval }

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := l.counters.snapshot()

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			cur := l.counters.snapshot()
			d := deltaSnapshot(prev, cur)
			prev = cur

			common := []any{"interval", l.interval.String()}

			l.logger.Info("cache_activity",
				append(common,
					"mem_hits", d.memHits,
					"mem_misses", d.memMisses,
					"disk_hits", d.diskHits,
					"disk_misses", d.diskMisses,
					"downloads", d.downloads,
					"coalesced", d.coalesced,
					"store_failures", d.storeFails,
				)...,
			)

			if l.diskSize != nil {
				l.logger.Info("disk_storage",
					append(common, "size", bytes.FmtMem(uint64(max(l.diskSize(), 0))))...,
				)
			}

			ops := l.latency.Operations()
			sort.Strings(ops)
			for _, op := range ops {
				p50, ok50 := l.latency.Quantile(op, 0.5)
				p99, ok99 := l.latency.Quantile(op, 0.99)
				if !ok50 || !ok99 {
					continue
				}
				l.logger.Info("latency",
					append(common, "op", op, "p50_ms", p50, "p99_ms", p99)...,
				)
			}
		}
	}
}
