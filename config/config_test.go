package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdjustConfigDefaults(t *testing.T) {
	cfg := &Config{Disk: &DiskCfg{Name: "app"}}
	cfg.AdjustConfig()

	require.NotNil(t, cfg.Memory)
	require.Equal(t, 2*time.Minute, cfg.Memory.CleanInterval)
	require.Equal(t, 5*time.Minute, cfg.Memory.DefaultExpiration)
	require.Equal(t, 7*24*time.Hour, cfg.Disk.DefaultExpiration)
	require.Equal(t, 15*time.Second, cfg.Download.Timeout)
	require.False(t, cfg.Telemetry.Enabled())
}

func TestValidateRequiresDiskName(t *testing.T) {
	require.ErrorIs(t, (&Config{}).Validate(), ErrInvalidConfig)
	require.ErrorIs(t, (&Config{Disk: &DiskCfg{}}).Validate(), ErrInvalidConfig)
	require.NoError(t, (&Config{Disk: &DiskCfg{Name: "app"}}).Validate())
}

func TestLoadConfig(t *testing.T) {
	yml := `
memory:
  total_cost_limit: 1048576
  count_limit: 100
disk:
  name: thumbnails
  size_limit: 10485760
  default_expiration: 24h
  clean_interval: 10m
download:
  timeout: 5s
telemetry:
  logs_interval: 30s
`
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, int64(1<<20), cfg.Memory.TotalCostLimit)
	require.Equal(t, "thumbnails", cfg.Disk.Name)
	require.Equal(t, 24*time.Hour, cfg.Disk.DefaultExpiration)
	require.Equal(t, 5*time.Second, cfg.Download.Timeout)
	require.True(t, cfg.Telemetry.Enabled())
	require.Equal(t, 30*time.Second, cfg.Telemetry.LogsInterval)
}

func TestLoadConfigMissingDiskName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disk: {}"), 0o644))

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
