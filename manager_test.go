package tiercache

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager[[]byte] {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m, err := New(ctx, testConfig(t), RawProcessor(), RawSerializer(), BytesCost, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// countingServer serves body and counts requests, optionally stalling each
// one to force overlap between concurrent callers.
func countingServer(t *testing.T, body []byte, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestManagerRetrieveDownloadsAndCaches(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("payload"), 0)
	ctx := context.Background()
	src := URLSource{URL: srv.URL}

	res, err := m.Retrieve(ctx, src, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, res.CacheType)
	require.Equal(t, []byte("payload"), res.Value)
	require.EqualValues(t, 1, hits.Load())

	res, err = m.Retrieve(ctx, src, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeMemory, res.CacheType)
	require.Equal(t, []byte("payload"), res.Value)
	require.EqualValues(t, 1, hits.Load())
}

func TestManagerConcurrentRetrievalsFetchOnce(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("shared"), 50*time.Millisecond)
	src := URLSource{URL: srv.URL}

	const callers = 8
	values := make([][]byte, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Retrieve(context.Background(), src, Options[[]byte]{})
			values[i], errs[i] = res.Value, err
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []byte("shared"), values[i])
	}
}

func TestManagerForceRefreshBypassesCache(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("payload"), 0)
	ctx := context.Background()
	src := URLSource{URL: srv.URL}

	_, err := m.Retrieve(ctx, src, Options[[]byte]{})
	require.NoError(t, err)

	res, err := m.Retrieve(ctx, src, Options[[]byte]{ForceRefresh: true})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, res.CacheType)
	require.EqualValues(t, 2, hits.Load())
}

func TestManagerOnlyFromCacheMiss(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("payload"), 0)
	src := URLSource{URL: srv.URL}

	_, err := m.Retrieve(context.Background(), src, Options[[]byte]{OnlyFromCache: true})
	require.ErrorIs(t, err, ErrItemNotExisting)
	require.Zero(t, hits.Load())
}

func TestManagerFromMemoryOrRefreshRefetches(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("payload"), 0)
	ctx := context.Background()
	src := URLSource{URL: srv.URL}

	_, err := m.Retrieve(ctx, src, Options[[]byte]{WaitForCache: true})
	require.NoError(t, err)
	m.Cache().ClearMemoryCache()

	// a copy sits on disk, but this mode refetches on a memory miss
	res, err := m.Retrieve(ctx, src, Options[[]byte]{FromMemoryCacheOrRefresh: true})
	require.NoError(t, err)
	require.Equal(t, CacheTypeNone, res.CacheType)
	require.EqualValues(t, 2, hits.Load())
}

func TestManagerOriginalItemAvoidsRefetch(t *testing.T) {
	m := newTestManager(t)
	srv, hits := countingServer(t, []byte("abc"), 0)
	ctx := context.Background()
	src := URLSource{URL: srv.URL}

	upper := ProcessorFunc[[]byte]{ID: "upper", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return bytes.ToUpper(data), nil
	}}
	double := ProcessorFunc[[]byte]{ID: "double", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return append(append([]byte{}, data...), data...), nil
	}}

	res, err := m.Retrieve(ctx, src, Options[[]byte]{
		Processor:         upper,
		CacheOriginalItem: true,
		WaitForCache:      true,
	})
	require.NoError(t, err)
	require.Equal(t, []byte("ABC"), res.Value)
	require.EqualValues(t, 1, hits.Load())

	// a different variant is served by reprocessing the stored original
	res, err = m.Retrieve(ctx, src, Options[[]byte]{Processor: double, WaitForCache: true})
	require.NoError(t, err)
	require.Equal(t, CacheTypeDisk, res.CacheType)
	require.Equal(t, []byte("abcabc"), res.Value)
	require.EqualValues(t, 1, hits.Load())

	// and the reprocessed variant now lives in memory
	res, err = m.Retrieve(ctx, src, Options[[]byte]{Processor: double})
	require.NoError(t, err)
	require.Equal(t, CacheTypeMemory, res.CacheType)
}

func TestManagerProcessorVariantsDoNotCollide(t *testing.T) {
	m := newTestManager(t)
	srv, _ := countingServer(t, []byte("abc"), 0)
	ctx := context.Background()
	src := URLSource{URL: srv.URL}

	upper := ProcessorFunc[[]byte]{ID: "upper", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return bytes.ToUpper(data), nil
	}}

	resDefault, err := m.Retrieve(ctx, src, Options[[]byte]{})
	require.NoError(t, err)
	resUpper, err := m.Retrieve(ctx, src, Options[[]byte]{Processor: upper})
	require.NoError(t, err)

	require.Equal(t, []byte("abc"), resDefault.Value)
	require.Equal(t, []byte("ABC"), resUpper.Value)

	res, err := m.Retrieve(ctx, src, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), res.Value)
}

func TestManagerDataProviderSource(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	res, err := m.Retrieve(ctx, staticProvider{key: "local", data: []byte("from-provider")}, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, []byte("from-provider"), res.Value)

	res, err = m.Retrieve(ctx, staticProvider{key: "local", data: nil}, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, CacheTypeMemory, res.CacheType)
	require.Equal(t, []byte("from-provider"), res.Value)
}

type staticProvider struct {
	key  string
	data []byte
}

func (p staticProvider) CacheKey() string                     { return p.key }
func (p staticProvider) Data(context.Context) ([]byte, error) { return p.data, nil }

func TestManagerEmptySource(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Retrieve(context.Background(), nil, Options[[]byte]{})
	require.ErrorIs(t, err, ErrEmptySource)

	_, err = m.Retrieve(context.Background(), URLSource{}, Options[[]byte]{})
	require.ErrorIs(t, err, ErrEmptySource)
}

func TestManagerRejectsNonDefaultProcessor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bad := ProcessorFunc[[]byte]{ID: "not-default", Fn: func(data []byte, _ map[string]string) ([]byte, error) {
		return data, nil
	}}
	_, err := New(ctx, testConfig(t), bad, RawSerializer(), BytesCost, testLogger())
	require.ErrorIs(t, err, ErrInvalidProcessor)
}

func TestManagerDownloadFailures(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(notFound.Close)
	_, err := m.Retrieve(ctx, URLSource{URL: notFound.URL}, Options[[]byte]{})
	require.ErrorIs(t, err, ErrInvalidHTTPStatusCode)

	empty := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(empty.Close)
	_, err = m.Retrieve(ctx, URLSource{URL: empty.URL}, Options[[]byte]{})
	require.ErrorIs(t, err, ErrMissingData)
}

func TestManagerProcessingFailure(t *testing.T) {
	m := newTestManager(t)
	srv, _ := countingServer(t, []byte("abc"), 0)

	broken := ProcessorFunc[[]byte]{ID: "broken", Fn: func([]byte, map[string]string) ([]byte, error) {
		return nil, context.DeadlineExceeded
	}}
	_, err := m.Retrieve(context.Background(), URLSource{URL: srv.URL}, Options[[]byte]{Processor: broken})
	require.ErrorIs(t, err, ErrProcessingFailed)
}

func TestManagerURLSourceKeyOverride(t *testing.T) {
	m := newTestManager(t)
	srvA, hitsA := countingServer(t, []byte("payload"), 0)
	srvB, hitsB := countingServer(t, []byte("other"), 0)
	ctx := context.Background()

	_, err := m.Retrieve(ctx, URLSource{URL: srvA.URL, Key: "stable"}, Options[[]byte]{})
	require.NoError(t, err)

	// same key, different URL: served from cache, no second transfer
	res, err := m.Retrieve(ctx, URLSource{URL: srvB.URL, Key: "stable"}, Options[[]byte]{})
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), res.Value)
	require.EqualValues(t, 1, hitsA.Load())
	require.Zero(t, hitsB.Load())
}
