package config

import "time"

type MemoryCfg struct {
	// TotalCostLimit bounds the summed cost of resident entries, in the
	// unit of the cache's cost function (typically bytes). 0 = unlimited.
	TotalCostLimit int64 `yaml:"total_cost_limit"`

	// CountLimit bounds the number of resident entries. 0 = unlimited.
	CountLimit int `yaml:"count_limit"`

	// DefaultExpiration applies to stores without a per-call policy.
	// Defaults to 5 minutes.
	DefaultExpiration time.Duration `yaml:"default_expiration"`

	// CleanInterval paces the background expired-entry sweep.
	// Defaults to 2 minutes.
	CleanInterval time.Duration `yaml:"clean_interval"`
}
