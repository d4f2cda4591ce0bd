// Package diskstore is the file-system tier: one directory per storage, one
// file per entry, entry metadata encoded entirely in file timestamps (see
// fileMeta). Size-based eviction trims to half of the limit so a storage
// hovering at its limit does not thrash.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofrs/flock"
	"go.uber.org/ratelimit"

	"github.com/dkrylov/go-tier-cache/expiry"
)

const (
	dirPrefix    = "com.dkrylov.tiercache."
	lockFileName = ".tiercache.lock"
	tmpSuffix    = ".tmp"

	// DefaultTouchRate caps metadata touch-ups per second so hot reads do
	// not turn into a Chtimes storm.
	DefaultTouchRate = 128
)

// DefaultExpiration is used when Config.Expiration is not set.
var DefaultExpiration = expiry.Days(7)

type Config struct {
	// Name isolates this storage in its own subdirectory. Two live storages
	// must never share a name, construction enforces this with a directory
	// lock.
	Name string

	// Directory overrides the root the storage directory is created under.
	// Empty means os.UserCacheDir().
	Directory string

	// SizeLimit bounds the summed file sizes, in bytes. 0 = unlimited.
	SizeLimit int64

	// Expiration applies to stores that carry no per-call policy.
	Expiration expiry.Expiration

	// PathExtension, when set, is appended to every file name.
	PathExtension string

	// UsesPlainName stores files under the raw key instead of its hash.
	// The caller then owns filesystem-safety of its keys.
	UsesPlainName bool

	// PathFunc overrides file path composition.
	PathFunc func(directory, fileName string) string

	// TouchRate caps asynchronous metadata touch-ups per second.
	TouchRate int

	// CleanInterval paces the background janitor (expired sweep, then size
	// sweep). 0 disables the janitor; the sweeps stay callable manually.
	CleanInterval time.Duration

	// OnCleanup, when set, receives the base names of files the janitor
	// removed. Invoked only for runs that removed at least one file.
	OnCleanup func(removed []string)
}

type touch struct {
	path   string
	access time.Time
	mod    time.Time
}

// Storage is safe for concurrent use. Mutating file operations go straight
// to the filesystem; only the metadata touch-ups are funneled through a
// serial queue so they never delay a read path.
type Storage struct {
	cfg     Config
	dir     string
	def     expiry.Expiration
	clk     clock.Clock
	logger  *slog.Logger
	lock    *flock.Flock
	touchCh chan touch
}

// New prepares the storage directory, takes exclusive ownership of it and
// starts the touch worker plus, when configured, the janitor. All
// background work stops when ctx is cancelled.
func New(ctx context.Context, cfg Config, clk clock.Clock, logger *slog.Logger) (*Storage, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: empty storage name", ErrCannotCreateDirectory)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	root := cfg.Directory
	if root == "" {
		var err error
		if root, err = os.UserCacheDir(); err != nil {
			return nil, fmt.Errorf("%w: resolve user cache dir: %w", ErrCannotCreateDirectory, err)
		}
	}
	dir := filepath.Join(root, dirPrefix+cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCannotCreateDirectory, dir, err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDirectoryInUse, dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryInUse, dir)
	}

	s := &Storage{
		cfg:     cfg,
		dir:     dir,
		def:     cfg.Expiration.Or(DefaultExpiration),
		clk:     clk,
		logger:  logger,
		lock:    lock,
		touchCh: make(chan touch, 1024),
	}

	go s.touchWorker(ctx)
	if cfg.CleanInterval > 0 {
		go s.janitor(ctx)
	}
	go func() {
		<-ctx.Done()
		_ = lock.Unlock()
	}()

	return s, nil
}

// Directory returns the absolute path of the storage directory.
func (s *Storage) Directory() string { return s.dir }

// FileName returns the on-disk base name key maps to.
func (s *Storage) FileName(key string) string { return s.fileName(key) }

// Store writes data under key. When the effective expiration is already
// expired at store time the write is silently skipped: storing an already
// dead value is a deliberate no-op, not an error.
func (s *Storage) Store(key string, data []byte, exp expiry.Expiration) error {
	policy := exp.Or(s.def)
	now := s.clk.Now()
	if policy.IsExpired(now, now) {
		return nil
	}

	path := s.pathFor(key)

	// temp file + rename keeps partially written entries invisible
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCannotStoreData, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %s: %w", ErrCannotStoreData, path, err)
	}

	// access time = now, modification time = estimated expiration
	if err := os.Chtimes(path, now, policy.EstimatedAt(now)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFileMeta, path, err)
	}
	return nil
}

// Value returns the bytes stored under key, validated against ref. An
// absent entry and an expired-but-present entry both report !ok with no
// error; the expired file stays on disk for a later sweep to collect. A hit
// schedules an asynchronous metadata touch-up that re-applies the entry's
// original lifetime from "now".
func (s *Storage) Value(key string, ref time.Time) (data []byte, ok bool, err error) {
	meta, found, err := s.peek(key)
	if err != nil || !found {
		return nil, false, err
	}
	if meta.expired(ref) {
		return nil, false, nil
	}

	data, err = os.ReadFile(meta.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// lost a race with a sweep
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %s: %w", ErrCannotLoadData, meta.path, err)
	}

	s.queueTouch(meta)
	return data, true, nil
}

// IsCached reports validity against ref without loading the bytes and
// without the extend-on-access side effect.
func (s *Storage) IsCached(key string, ref time.Time) (bool, error) {
	meta, found, err := s.peek(key)
	if err != nil || !found {
		return false, err
	}
	return !meta.expired(ref), nil
}

// Remove deletes the entry for key, if any.
func (s *Storage) Remove(key string) error {
	if err := os.Remove(s.pathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrCannotStoreData, s.pathFor(key), err)
	}
	return nil
}

// RemoveAll deletes every entry while keeping the directory and its
// ownership lock in place.
func (s *Storage) RemoveAll() error {
	metas, err := s.entries()
	if err != nil {
		return err
	}
	for _, m := range metas {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", ErrCannotStoreData, m.path, err)
		}
	}
	return nil
}

// RemoveExpiredValues deletes every entry whose estimated expiration is at
// or before ref and returns the removed paths.
func (s *Storage) RemoveExpiredValues(ref time.Time) ([]string, error) {
	metas, err := s.entries()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, m := range metas {
		if !m.expired(ref) {
			continue
		}
		if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: %s: %w", ErrCannotStoreData, m.path, err)
		}
		removed = append(removed, m.path)
	}
	return removed, nil
}

// RemoveSizeExceededValues evicts least-recently-accessed entries until the
// total size drops to half of the configured limit, returning the removed
// paths. A no-op when the limit is 0 or not yet reached. Trimming past the
// limit down to half of it is deliberate hysteresis: trimming to the exact
// limit would re-trigger on the next store.
func (s *Storage) RemoveSizeExceededValues() ([]string, error) {
	if s.cfg.SizeLimit <= 0 {
		return nil, nil
	}
	metas, err := s.entries()
	if err != nil {
		return nil, err
	}

	var total int64
	for _, m := range metas {
		total += m.size
	}
	if total < s.cfg.SizeLimit {
		return nil, nil
	}

	// most recently accessed first; evict from the tail
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].lastAccess.After(metas[j].lastAccess)
	})

	target := s.cfg.SizeLimit / 2
	var removed []string
	for i := len(metas) - 1; i >= 0 && total > target; i-- {
		m := metas[i]
		if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("%w: %s: %w", ErrCannotStoreData, m.path, err)
		}
		total -= m.size
		removed = append(removed, m.path)
	}
	return removed, nil
}

// TotalSize reports the summed size of all entries.
func (s *Storage) TotalSize() (int64, error) {
	metas, err := s.entries()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, m := range metas {
		total += m.size
	}
	return total, nil
}

/**
 * Private API.
 */

func (s *Storage) peek(key string) (fileMeta, bool, error) {
	path := s.pathFor(key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileMeta{}, false, nil
		}
		return fileMeta{}, false, fmt.Errorf("%w: %s: %w", ErrInvalidFileMeta, path, err)
	}
	if info.IsDir() {
		return fileMeta{}, false, nil
	}
	return metaFromInfo(path, info), true, nil
}

// entries enumerates all cache files, skipping directories, the ownership
// lock and in-flight temp files.
func (s *Storage) entries() ([]fileMeta, error) {
	var metas []fileMeta
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.dir {
				return nil
			}
			return filepath.SkipDir
		}
		name := d.Name()
		if name == lockFileName || strings.HasSuffix(name, tmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("%w: %s: %w", ErrInvalidFileMeta, path, err)
		}
		metas = append(metas, metaFromInfo(path, info))
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidFileMeta) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrCannotEnumerateFiles, s.dir, err)
	}
	return metas, nil
}

// queueTouch hands the extend-on-access metadata update to the serial
// worker. A full queue drops the touch-up rather than stall the read: the
// entry then simply expires on its previous schedule.
//
// A non-positive window means the timestamps carry no usable lifetime.
// That is the steady state on platforms whose accessTime falls back to the
// modification time; writing now+window there would expire the entry on
// its first read, so such entries keep their fixed schedule instead of
// sliding.
func (s *Storage) queueTouch(meta fileMeta) {
	w := meta.window()
	if w <= 0 {
		return
	}
	now := s.clk.Now()
	t := touch{path: meta.path, access: now, mod: now.Add(w)}
	select {
	case s.touchCh <- t:
	default:
	}
}

func (s *Storage) touchWorker(ctx context.Context) {
	rate := s.cfg.TouchRate
	if rate <= 0 {
		rate = DefaultTouchRate
	}
	limiter := ratelimit.New(rate)

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.touchCh:
			limiter.Take()
			if err := os.Chtimes(t.path, t.access, t.mod); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.logger.Debug("touch-up failed", "path", t.path, "err", err)
			}
		}
	}
}
