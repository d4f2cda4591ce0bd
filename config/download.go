package config

import "time"

type DownloadCfg struct {
	// Timeout bounds one network transfer. Defaults to 15 seconds.
	Timeout time.Duration `yaml:"timeout"`
}

type TelemetryCfg struct {
	// LogsInterval paces the periodic telemetry log line.
	// Defaults to 5 seconds.
	LogsInterval time.Duration `yaml:"logs_interval"`
}

func (cfg *TelemetryCfg) Enabled() bool {
	return cfg != nil
}
