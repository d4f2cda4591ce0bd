package tiercache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/dkrylov/go-tier-cache/config"
	"github.com/dkrylov/go-tier-cache/expiry"
	"github.com/dkrylov/go-tier-cache/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Disk: &config.DiskCfg{Name: "items", Directory: t.TempDir()},
	}
}

func newTestCache(t *testing.T, clk clock.Clock) *Cache[[]byte] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := newCache(ctx, testConfig(t), RawSerializer(), BytesCost, clk,
		testLogger(), telemetry.NewCounters(), telemetry.NewLatency())
	require.NoError(t, err)
	return c
}

func TestCacheStoreAndRetrieveFromMemory(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	res := c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	require.NoError(t, res.Memory)
	require.NoError(t, res.Disk)

	item, ct, err := c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeMemory, ct)
	require.Equal(t, []byte("payload"), item)
}

func TestCacheDiskFallbackRepopulatesMemory(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	c.ClearMemoryCache()

	item, ct, err := c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeDisk, ct)
	require.Equal(t, []byte("payload"), item)

	// the disk hit went back into memory
	_, ct, err = c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeMemory, ct)
}

func TestCacheMemoryOnlyStoreSkipsDisk(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{MemoryCacheOnly: true})
	c.ClearMemoryCache()

	_, ct, err := c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, ct)
}

func TestCacheFromMemoryOrRefreshSkipsDisk(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	c.ClearMemoryCache()

	_, ct, err := c.Retrieve(ctx, "a", Options[[]byte]{FromMemoryCacheOrRefresh: true})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, ct)
}

func TestCacheProcessorVariantsAreIsolated(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()
	thumb := ProcessorFunc[[]byte]{ID: "thumb", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return data[:1], nil
	}}

	c.Store(ctx, "a", []byte("full"), nil, Options[[]byte]{WaitForCache: true})
	c.Store(ctx, "a", []byte("f"), nil, Options[[]byte]{Processor: thumb, WaitForCache: true})

	item, _, err := c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, []byte("full"), item)

	item, _, err = c.Retrieve(ctx, "a", Options[[]byte]{Processor: thumb})
	require.NoError(t, err)
	require.Equal(t, []byte("f"), item)
}

func TestCacheCachedTypeDoesNotPromote(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	require.Equal(t, CacheTypeNone, c.CachedType("a", ""))

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	require.Equal(t, CacheTypeMemory, c.CachedType("a", ""))

	c.ClearMemoryCache()
	require.Equal(t, CacheTypeDisk, c.CachedType("a", ""))
	// peeking at the disk tier must not have pulled it back into memory
	require.Equal(t, CacheTypeDisk, c.CachedType("a", ""))
}

func TestCacheRemoveDropsBothTiers(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	require.NoError(t, c.Remove(ctx, "a", Options[[]byte]{}))
	require.Equal(t, CacheTypeNone, c.CachedType("a", ""))
}

func TestCacheOriginalDataRoundTrip(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()
	thumb := ProcessorFunc[[]byte]{ID: "thumb", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return data[:1], nil
	}}

	c.Store(ctx, "a", []byte("r"), []byte("raw-bytes"), Options[[]byte]{
		Processor:         thumb,
		CacheOriginalItem: true,
		WaitForCache:      true,
	})

	data, ok, err := c.OriginalData(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("raw-bytes"), data)
}

func TestCacheClearDiskCache(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	c.Store(ctx, "a", []byte("payload"), nil, Options[[]byte]{WaitForCache: true})
	c.ClearMemoryCache()
	require.NoError(t, c.ClearDiskCache(ctx))

	_, ct, err := c.Retrieve(ctx, "a", Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, ct)
}

func TestCacheCleanExpiredDiskNotifiesObservers(t *testing.T) {
	mock := clock.NewMock()
	c := newTestCache(t, mock)
	ctx := context.Background()

	var notified []string
	c.OnDiskCleanup(func(removed []string) { notified = append(notified, removed...) })

	c.Store(ctx, "gone", []byte("x"), nil, Options[[]byte]{
		DiskExpiration: expiry.After(time.Minute),
		WaitForCache:   true,
	})
	c.Store(ctx, "kept", []byte("y"), nil, Options[[]byte]{
		DiskExpiration: expiry.After(time.Hour),
		WaitForCache:   true,
	})
	mock.Add(2 * time.Minute)

	removed, err := c.CleanExpiredDiskCache(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{c.DiskFileName("gone")}, removed)
	require.Equal(t, removed, notified)
}

func TestCacheDiskOpsReturnAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := newCache(ctx, testConfig(t), RawSerializer(), BytesCost, clock.New(),
		testLogger(), telemetry.NewCounters(), telemetry.NewLatency())
	require.NoError(t, err)

	cancel()

	// once the worker is gone every disk operation must error out, even
	// with a live caller context, instead of parking on the queue
	require.Eventually(t, func() bool {
		_, _, err := c.Retrieve(context.Background(), "a", Options[[]byte]{})
		return errors.Is(err, context.Canceled)
	}, 2*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, c.ClearDiskCache(context.Background()), context.Canceled)

	res := c.Store(context.Background(), "a", []byte("v"), nil, Options[[]byte]{WaitForCache: true})
	require.ErrorIs(t, res.Disk, context.Canceled)
}

func TestCacheDiskStorageSize(t *testing.T) {
	c := newTestCache(t, clock.New())
	ctx := context.Background()

	size, err := c.DiskStorageSize(ctx)
	require.NoError(t, err)
	require.Zero(t, size)

	c.Store(ctx, "a", []byte("12345"), nil, Options[[]byte]{WaitForCache: true})
	size, err = c.DiskStorageSize(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, size)
}
