package tiercache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dkrylov/go-tier-cache/config"
	"github.com/dkrylov/go-tier-cache/internal/coalesce"
	"github.com/dkrylov/go-tier-cache/internal/telemetry"
)

// Downloader fetches raw payloads over HTTP. Concurrent downloads of the
// same URL coalesce into one transfer: every caller gets the same bytes,
// a caller's ctx cancellation detaches only that caller, and the transfer
// itself is cancelled when the last caller detaches.
type Downloader struct {
	client   *http.Client
	group    *coalesce.Group[[]byte]
	counters *telemetry.Counters
	logger   *slog.Logger
}

func newDownloader(cfg *config.DownloadCfg, counters *telemetry.Counters, logger *slog.Logger) *Downloader {
	return &Downloader{
		client:   &http.Client{Timeout: cfg.Timeout},
		group:    coalesce.New[[]byte](),
		counters: counters,
		logger:   logger,
	}
}

// Download returns the body at url. ctx bounds this caller's wait, not the
// shared transfer.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	data, shared, err := d.group.Do(ctx, url, func(ctx context.Context) ([]byte, error) {
		d.counters.Download()
		return d.fetch(ctx, url)
	})
	if shared {
		d.counters.Coalesced()
	}
	return data, err
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d from %s", ErrInvalidHTTPStatusCode, resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingData, url)
	}
	return data, nil
}
