package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete volman configuration.
//
// This structure captures all configurable aspects of the volume manager
// including:
//   - Logging configuration
//   - Metadata cache policy
//   - Device layer selection and device definitions
//   - Metadata format backends
//   - External daemon configuration
//   - Persisted device filter cache
//   - Metrics collection
//
// Configuration sources (in order of precedence):
//  1. Environment variables (VOLMAN_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Collaborator Configuration Pattern:
// Each collaborator implementation defines its own configuration type and
// factory function. The Config struct contains type-specific sections and
// only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Cache contains metadata cache policy settings
	Cache CacheConfig `mapstructure:"cache"`

	// Devices specifies the device layer type and type-specific configuration
	Devices DevicesConfig `mapstructure:"devices"`

	// Formats lists the metadata format backends to enable
	Formats []string `mapstructure:"formats" validate:"dive,oneof=text xdr"`

	// Daemon configures the external metadata daemon client
	Daemon DaemonConfig `mapstructure:"daemon"`

	// FilterCache configures the persisted device filter cache
	FilterCache FilterCacheConfig `mapstructure:"filter_cache"`

	// Metrics configures Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// CacheConfig contains metadata cache policy settings.
type CacheConfig struct {
	// CacheVGMetadata enables caching of serialized VG metadata blobs
	CacheVGMetadata bool `mapstructure:"cache_vg_metadata"`

	// DetectCorruption enables the consistency check on shared parsed VG
	// objects when their last borrower releases them
	DetectCorruption bool `mapstructure:"detect_corruption"`

	// ReuseCheckThreshold is the reuse count above which the consistency
	// check runs. 0 uses the built-in default.
	ReuseCheckThreshold int `mapstructure:"reuse_check_threshold" validate:"gte=0"`

	// LongLived marks a long-running process; enables filter cache dumps
	// after full scans for the benefit of short-lived commands
	LongLived bool `mapstructure:"long_lived"`

	// Hostname overrides the local host name used to resolve duplicate VG
	// names in favor of locally created VGs. Empty uses os.Hostname.
	Hostname string `mapstructure:"hostname"`
}

// DevicesConfig specifies device layer configuration.
//
// The Type field determines which device layer implementation is used.
// Only the corresponding type-specific configuration section is used.
type DevicesConfig struct {
	// Type specifies which device layer implementation to use
	// Valid values: memory
	Type string `mapstructure:"type" validate:"required,oneof=memory"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// MemoryDevicesConfig configures the in-memory device layer. It is decoded
// from the untyped memory section by the device layer factory.
type MemoryDevicesConfig struct {
	// Devices lists the devices visible to the layer
	Devices []DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig defines a single device of the in-memory device layer.
type DeviceConfig struct {
	// Name is the device name (e.g., "/dev/loop0")
	Name string `mapstructure:"name"`

	// Size is the device size in bytes
	Size uint64 `mapstructure:"size"`

	// PVID is the PV identifier on the device's label; empty means the
	// device carries no PV label
	PVID string `mapstructure:"pvid"`

	// Format names the metadata format of the label
	Format string `mapstructure:"format"`

	// VGName and VGID place the PV in a VG; empty means orphan
	VGName string `mapstructure:"vg_name"`
	VGID   string `mapstructure:"vg_id"`
}

// DaemonConfig configures the external metadata daemon client.
type DaemonConfig struct {
	// Type specifies which daemon client implementation to use
	// Valid values: none, memory
	Type string `mapstructure:"type" validate:"required,oneof=none memory"`
}

// FilterCacheConfig configures the persisted device filter cache.
type FilterCacheConfig struct {
	// Enabled turns the persisted filter cache on
	Enabled bool `mapstructure:"enabled"`

	// Path is the BadgerDB directory backing the cache
	// Required when Enabled is true
	Path string `mapstructure:"path" validate:"required_if=Enabled true"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns metrics collection and the HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics HTTP server port
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (VOLMAN_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use VOLMAN_ prefix and underscores
	// Example: VOLMAN_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("VOLMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/volman/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// current directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "volman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "volman")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
