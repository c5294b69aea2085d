// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net/netip"
	"runtime"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `srv6nat:` root key in YAML.
type GlobalConfig struct {
	Log       LogConfig        `mapstructure:"log"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Dataplane DataplaneConfig  `mapstructure:"dataplane"`
	LocalSIDs []LocalSIDConfig `mapstructure:"localsids"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Format  string           `mapstructure:"format"`  // text / json
	Pattern string           `mapstructure:"pattern"` // text format: %time %level %field %msg %caller
	Time    string           `mapstructure:"time"`    // Go time layout
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stdout.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Listen   string `mapstructure:"listen"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"` // written once a run completes; empty = disabled
}

// ─── Data plane ───

// DataplaneConfig sizes the packet processing workers.
type DataplaneConfig struct {
	Workers      int `mapstructure:"workers"`       // 0 = GOMAXPROCS
	FrameSize    int `mapstructure:"frame_size"`    // packets per frame handed to a worker
	Trace        int `mapstructure:"trace"`         // trace the first N packets
	MaxLocalSIDs int `mapstructure:"max_localsids"` // 0 = unlimited
}

// ─── Local SIDs ───

// LocalSIDConfig binds an IPv6 segment address to an End.NAT configuration
// string such as "end.nat from 10.0.0.0 to 10.1.0.0".
type LocalSIDConfig struct {
	Address  netip.Addr `mapstructure:"address"`
	Behavior string     `mapstructure:"behavior"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `srv6nat: ...`.
type configRoot struct {
	SRv6NAT GlobalConfig `mapstructure:"srv6nat"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides (e.g., SRV6NAT_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "srv6nat.log.level" → env "SRV6NAT_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.SRv6NAT

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "srv6nat." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("srv6nat.log.level", "info")
	v.SetDefault("srv6nat.log.format", "text")
	v.SetDefault("srv6nat.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("srv6nat.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("srv6nat.log.outputs.file.enabled", false)
	v.SetDefault("srv6nat.log.outputs.file.path", "/var/log/srv6nat/srv6nat.log")
	v.SetDefault("srv6nat.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("srv6nat.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("srv6nat.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("srv6nat.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("srv6nat.metrics.enabled", false)
	v.SetDefault("srv6nat.metrics.listen", ":9091")
	v.SetDefault("srv6nat.metrics.path", "/metrics")
	v.SetDefault("srv6nat.metrics.textfile", "")

	// Data plane defaults
	v.SetDefault("srv6nat.dataplane.workers", 1)
	v.SetDefault("srv6nat.dataplane.frame_size", 256)
	v.SetDefault("srv6nat.dataplane.trace", 0)
	v.SetDefault("srv6nat.dataplane.max_localsids", 0)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	// ── Metrics validation ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// ── Data plane ──
	if cfg.Dataplane.Workers < 0 {
		return fmt.Errorf("dataplane.workers must be >= 0, got %d", cfg.Dataplane.Workers)
	}
	if cfg.Dataplane.Workers == 0 {
		cfg.Dataplane.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Dataplane.FrameSize <= 0 {
		return fmt.Errorf("dataplane.frame_size must be > 0, got %d", cfg.Dataplane.FrameSize)
	}
	if cfg.Dataplane.Trace < 0 {
		return fmt.Errorf("dataplane.trace must be >= 0, got %d", cfg.Dataplane.Trace)
	}
	if cfg.Dataplane.MaxLocalSIDs < 0 {
		return fmt.Errorf("dataplane.max_localsids must be >= 0, got %d", cfg.Dataplane.MaxLocalSIDs)
	}

	// ── Local SIDs ──
	seen := make(map[netip.Addr]bool, len(cfg.LocalSIDs))
	for i, ls := range cfg.LocalSIDs {
		if !ls.Address.Is6() || ls.Address.Is4In6() {
			return fmt.Errorf("localsids[%d].address %q is not an IPv6 address", i, ls.Address)
		}
		if seen[ls.Address] {
			return fmt.Errorf("localsids[%d].address %s is duplicated", i, ls.Address)
		}
		seen[ls.Address] = true
		if strings.TrimSpace(ls.Behavior) == "" {
			return fmt.Errorf("localsids[%d].behavior is required", i)
		}
	}
	if cfg.Dataplane.MaxLocalSIDs > 0 && len(cfg.LocalSIDs) > cfg.Dataplane.MaxLocalSIDs {
		return fmt.Errorf("%d localsids configured, dataplane.max_localsids is %d", len(cfg.LocalSIDs), cfg.Dataplane.MaxLocalSIDs)
	}

	return nil
}
