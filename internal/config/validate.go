package config

import (
	"fmt"
	"strings"
)

// validate checks a Config for internal consistency, accumulating every
// violation found rather than stopping at the first.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.BindAddress == "" {
		errs = append(errs, "server.bind_address must not be empty")
	}
	if cfg.Server.DashboardPort <= 0 || cfg.Server.DashboardPort > 65535 {
		errs = append(errs, "server.dashboard_port must be between 1 and 65535")
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level %q is not one of %v", cfg.Server.LogLevel, ValidLogLevels))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}

	if cfg.Build.ManifestName == "" {
		errs = append(errs, "build.manifest_name must not be empty")
	}
	if cfg.Build.MaxMemoryCacheEntries <= 0 {
		errs = append(errs, "build.max_memory_cache_entries must be positive")
	}
	if len(cfg.Build.CandidateExtensions) == 0 {
		errs = append(errs, "build.candidate_extensions must not be empty")
	}
	for _, ext := range cfg.Build.CandidateExtensions {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Sprintf("build.candidate_extensions entry %q must start with '.'", ext))
		}
	}

	if cfg.Farm.Enabled {
		if cfg.Farm.DefaultRate <= 0 {
			errs = append(errs, "farm.default_rate must be positive when farm is enabled")
		}
		if cfg.Farm.DefaultBurst <= 0 {
			errs = append(errs, "farm.default_burst must be positive when farm is enabled")
		}
		for name, lim := range cfg.Farm.TransformerLimits {
			if lim.Rate <= 0 {
				errs = append(errs, fmt.Sprintf("farm.transformer_limits[%s].rate must be positive", name))
			}
			if lim.Burst <= 0 {
				errs = append(errs, fmt.Sprintf("farm.transformer_limits[%s].burst must be positive", name))
			}
		}
		if cfg.Farm.CBEnabled {
			if cfg.Farm.CBFailureThreshold <= 0 {
				errs = append(errs, "farm.cb_failure_threshold must be positive")
			}
			if cfg.Farm.CBResetTimeoutSec <= 0 {
				errs = append(errs, "farm.cb_reset_timeout_seconds must be positive")
			}
			if cfg.Farm.CBHalfOpenMax <= 0 {
				errs = append(errs, "farm.cb_half_open_max_calls must be positive")
			}
		}
		if cfg.Farm.RetryMaxAttempts <= 0 {
			errs = append(errs, "farm.retry_max_attempts must be positive")
		}
		if cfg.Farm.RetryBaseDelayMs <= 0 {
			errs = append(errs, "farm.retry_base_delay_ms must be positive")
		}
		if cfg.Farm.RetryMaxDelayMs < cfg.Farm.RetryBaseDelayMs {
			errs = append(errs, "farm.retry_max_delay_ms must be >= retry_base_delay_ms")
		}
	}

	if cfg.Watch.Enabled && cfg.Watch.DebounceMs < 0 {
		errs = append(errs, "watch.debounce_ms must not be negative")
	}

	if cfg.Tracing.Enabled {
		if !isValidEnum(cfg.Tracing.Exporter, ValidTracingExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter %q is not one of %v", cfg.Tracing.Exporter, ValidTracingExporters))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
		if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
			errs = append(errs, "tracing.sample_rate must be between 0 and 1")
		}
	}

	if cfg.Dashboard.Enabled && len(cfg.Dashboard.AllowedOrigins) == 0 {
		errs = append(errs, "dashboard.allowed_origins must not be empty when dashboard is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum reports whether val matches one of allowed, case-insensitively.
func isValidEnum(val string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(val, a) {
			return true
		}
	}
	return false
}
