package config

import "time"

type DiskCfg struct {
	// Name isolates this cache in its own directory. Two live caches must
	// never share a name: they would silently share and corrupt each
	// other's files. The library enforces this with a directory lock.
	Name string `yaml:"name"`

	// SizeLimit bounds the summed file sizes, in bytes. 0 = unlimited.
	// When exceeded, least-recently-accessed entries are evicted until the
	// total drops to half of the limit.
	SizeLimit int64 `yaml:"size_limit"`

	// DefaultExpiration applies to stores without a per-call policy.
	// Defaults to 7 days.
	DefaultExpiration time.Duration `yaml:"default_expiration"`

	// PathExtension, when set, is appended to every cache file name.
	PathExtension string `yaml:"path_extension"`

	// UsesPlainName stores files under the raw key instead of its hash.
	// The caller then owns filesystem-safety of its keys.
	UsesPlainName bool `yaml:"plain_file_name"`

	// Directory overrides the root the cache directory is created under.
	// Empty means the user cache directory.
	Directory string `yaml:"directory"`

	// TouchRate caps asynchronous metadata touch-ups per second.
	TouchRate int `yaml:"touch_rate"`

	// CleanInterval paces the background janitor (expired sweep followed by
	// size sweep). 0 disables scheduled cleaning; CleanExpiredDisk stays
	// callable manually.
	CleanInterval time.Duration `yaml:"clean_interval"`
}
