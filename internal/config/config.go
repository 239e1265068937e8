package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for buildcore.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    toml:"server"`
	Build     BuildConfig     `mapstructure:"build"     toml:"build"`
	Farm      FarmConfig      `mapstructure:"farm"      toml:"farm"`
	Secrets   SecretsConfig   `mapstructure:"secrets"   toml:"secrets"`
	Watch     WatchConfig     `mapstructure:"watch"     toml:"watch"`
	Tracing   TracingConfig   `mapstructure:"tracing"   toml:"tracing"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
}

// ServerConfig holds process-level settings: where state lives and how the
// dashboard HTTP surface listens.
type ServerConfig struct {
	BindAddress   string `mapstructure:"bind_address"   toml:"bind_address"`
	DashboardPort int    `mapstructure:"dashboard_port" toml:"dashboard_port"`
	LogLevel      string `mapstructure:"log_level"      toml:"log_level"`
	DataDir       string `mapstructure:"data_dir"       toml:"data_dir"`
	ReadTimeout   int    `mapstructure:"read_timeout"   toml:"read_timeout"`
	WriteTimeout  int    `mapstructure:"write_timeout"  toml:"write_timeout"`
	IdleTimeout   int    `mapstructure:"idle_timeout"   toml:"idle_timeout"`
}

// BuildConfig configures the Asset Request Driver: cache participation,
// the project root the resolver and config service search from, the lock
// file driving version-request invalidation, and module resolution.
type BuildConfig struct {
	ProjectRoot           string   `mapstructure:"project_root"              toml:"project_root"`
	CacheEnabled          bool     `mapstructure:"cache_enabled"             toml:"cache_enabled"`
	CacheDir              string   `mapstructure:"cache_dir"                 toml:"cache_dir"`
	LockFile              string   `mapstructure:"lock_file"                 toml:"lock_file"`
	ManifestName          string   `mapstructure:"manifest_name"             toml:"manifest_name"`
	CandidateExtensions   []string `mapstructure:"candidate_extensions"      toml:"candidate_extensions"`
	MaxMemoryCacheEntries int      `mapstructure:"max_memory_cache_entries"  toml:"max_memory_cache_entries"`
}

// FarmConfig controls dispatch to the worker farm: whether dispatches run
// through the farm's resilience wrapper at all, and the rate-limit,
// circuit-breaker, and retry policy guarding it.
type FarmConfig struct {
	Enabled              bool                         `mapstructure:"enabled"                  toml:"enabled"`
	DefaultRate          float64                      `mapstructure:"default_rate"             toml:"default_rate"`
	DefaultBurst         int                          `mapstructure:"default_burst"             toml:"default_burst"`
	TransformerLimits    map[string]TransformerLimit  `mapstructure:"transformer_limits"        toml:"transformer_limits"`
	CBEnabled            bool                         `mapstructure:"circuit_breaker_enabled"   toml:"circuit_breaker_enabled"`
	CBFailureThreshold   int                          `mapstructure:"cb_failure_threshold"      toml:"cb_failure_threshold"`
	CBResetTimeoutSec    int                          `mapstructure:"cb_reset_timeout_seconds"  toml:"cb_reset_timeout_seconds"`
	CBHalfOpenMax        int                          `mapstructure:"cb_half_open_max_calls"    toml:"cb_half_open_max_calls"`
	RetryMaxAttempts     int                          `mapstructure:"retry_max_attempts"        toml:"retry_max_attempts"`
	RetryBaseDelayMs     int                          `mapstructure:"retry_base_delay_ms"       toml:"retry_base_delay_ms"`
	RetryMaxDelayMs      int                          `mapstructure:"retry_max_delay_ms"        toml:"retry_max_delay_ms"`
}

// TransformerLimit overrides the default rate/burst for one transform chain.
type TransformerLimit struct {
	Rate  float64 `mapstructure:"rate"  toml:"rate"`
	Burst int     `mapstructure:"burst" toml:"burst"`
}

// SecretsConfig names the credential references resolved through
// internal/secrets for out-of-process collaborators.
type SecretsConfig struct {
	FarmEndpointKeyRef   string `mapstructure:"farm_endpoint_key_ref"   toml:"farm_endpoint_key_ref"`
	RemoteCacheKeyRef    string `mapstructure:"remote_cache_key_ref"    toml:"remote_cache_key_ref"`
}

// WatchConfig controls the invalidation journal's debounce behavior in
// watch mode (build-on-change).
type WatchConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	DebounceMs int  `mapstructure:"debounce_ms" toml:"debounce_ms"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "buildcore"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// DashboardConfig controls the build-progress telemetry HTTP surface.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"         toml:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (BUILDCORE_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.buildcore/buildcore.toml
//  4. ./buildcore.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("BUILDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".buildcore"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("buildcore")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	if cfg.Build.ProjectRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.Build.ProjectRoot = wd
		}
	}
	if cfg.Build.CacheDir == "" {
		cfg.Build.CacheDir = filepath.Join(cfg.Server.DataDir, "cache")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.buildcore/buildcore.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".buildcore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and merges it into the current config.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.dashboard_port", d.Server.DashboardPort)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)

	v.SetDefault("build.project_root", d.Build.ProjectRoot)
	v.SetDefault("build.cache_enabled", d.Build.CacheEnabled)
	v.SetDefault("build.cache_dir", d.Build.CacheDir)
	v.SetDefault("build.lock_file", d.Build.LockFile)
	v.SetDefault("build.manifest_name", d.Build.ManifestName)
	v.SetDefault("build.candidate_extensions", d.Build.CandidateExtensions)
	v.SetDefault("build.max_memory_cache_entries", d.Build.MaxMemoryCacheEntries)

	v.SetDefault("farm.enabled", d.Farm.Enabled)
	v.SetDefault("farm.default_rate", d.Farm.DefaultRate)
	v.SetDefault("farm.default_burst", d.Farm.DefaultBurst)
	v.SetDefault("farm.circuit_breaker_enabled", d.Farm.CBEnabled)
	v.SetDefault("farm.cb_failure_threshold", d.Farm.CBFailureThreshold)
	v.SetDefault("farm.cb_reset_timeout_seconds", d.Farm.CBResetTimeoutSec)
	v.SetDefault("farm.cb_half_open_max_calls", d.Farm.CBHalfOpenMax)
	v.SetDefault("farm.retry_max_attempts", d.Farm.RetryMaxAttempts)
	v.SetDefault("farm.retry_base_delay_ms", d.Farm.RetryBaseDelayMs)
	v.SetDefault("farm.retry_max_delay_ms", d.Farm.RetryMaxDelayMs)

	v.SetDefault("secrets.farm_endpoint_key_ref", d.Secrets.FarmEndpointKeyRef)
	v.SetDefault("secrets.remote_cache_key_ref", d.Secrets.RemoteCacheKeyRef)

	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce_ms", d.Watch.DebounceMs)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.allowed_origins", d.Dashboard.AllowedOrigins)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
