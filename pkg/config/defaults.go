package config

import (
	"strings"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible
// defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Collaborator-specific defaults are handled by their implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyDevicesDefaults(&cfg.Devices)

	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"text"}
	}

	applyDaemonDefaults(&cfg.Daemon)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

// applyCacheDefaults sets cache policy defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	// CacheVGMetadata intentionally defaults to false: blob caching only
	// pays off for commands reading the same VG repeatedly.
	if cfg.ReuseCheckThreshold == 0 {
		cfg.ReuseCheckThreshold = 1
	}
}

// applyDevicesDefaults sets device layer defaults.
func applyDevicesDefaults(cfg *DevicesConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
}

// applyDaemonDefaults sets daemon client defaults.
func applyDaemonDefaults(cfg *DaemonConfig) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}
