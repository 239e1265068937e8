package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Server.DataDir = "/tmp/test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := validate(cfg); err != nil {
		t.Fatalf("validate valid config: %v", err)
	}
}

func TestValidate_BadDashboardPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DashboardPort = 70000

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for port 70000")
	}
	if !strings.Contains(err.Error(), "dashboard_port") {
		t.Errorf("error should mention dashboard_port: %v", err)
	}
}

func TestValidate_ZeroDashboardPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DashboardPort = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for dashboard port 0")
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LogLevel = "verbose"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level: %v", err)
	}
}

func TestValidate_EmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DataDir = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty data_dir")
	}
}

func TestValidate_EmptyManifestName(t *testing.T) {
	cfg := validConfig()
	cfg.Build.ManifestName = ""

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty manifest_name")
	}
}

func TestValidate_ZeroMaxMemoryCacheEntries(t *testing.T) {
	cfg := validConfig()
	cfg.Build.MaxMemoryCacheEntries = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for max_memory_cache_entries = 0")
	}
}

func TestValidate_EmptyCandidateExtensions(t *testing.T) {
	cfg := validConfig()
	cfg.Build.CandidateExtensions = nil

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty candidate_extensions")
	}
}

func TestValidate_CandidateExtensionMissingDot(t *testing.T) {
	cfg := validConfig()
	cfg.Build.CandidateExtensions = []string{"js"}

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for extension missing leading dot")
	}
}

func TestValidate_FarmBadRate(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.DefaultRate = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for farm.default_rate = 0")
	}
}

func TestValidate_FarmTransformerLimitBadBurst(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.TransformerLimits = map[string]TransformerLimit{
		"js": {Rate: 1, Burst: 0},
	}

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for transformer_limits burst = 0")
	}
}

func TestValidate_Farm_ZeroFailureThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.CBEnabled = true
	cfg.Farm.CBFailureThreshold = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for cb_failure_threshold = 0")
	}
}

func TestValidate_Farm_ZeroResetTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.CBEnabled = true
	cfg.Farm.CBResetTimeoutSec = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for cb_reset_timeout_seconds = 0")
	}
}

func TestValidate_Farm_ZeroRetryAttempts(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.RetryMaxAttempts = 0

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for retry_max_attempts = 0")
	}
}

func TestValidate_Farm_MaxDelayBelowBase(t *testing.T) {
	cfg := validConfig()
	cfg.Farm.Enabled = true
	cfg.Farm.RetryBaseDelayMs = 500
	cfg.Farm.RetryMaxDelayMs = 100

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for retry_max_delay_ms < retry_base_delay_ms")
	}
}

func TestValidate_WatchNegativeDebounce(t *testing.T) {
	cfg := validConfig()
	cfg.Watch.Enabled = true
	cfg.Watch.DebounceMs = -1

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for negative debounce_ms")
	}
}

func TestValidate_TracingBadExporter(t *testing.T) {
	cfg := validConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "carrier-pigeon"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid tracing exporter")
	}
}

func TestValidate_TracingBadSampleRate(t *testing.T) {
	cfg := validConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.SampleRate = 1.5

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for sample_rate > 1")
	}
}

func TestValidate_DashboardEmptyOrigins(t *testing.T) {
	cfg := validConfig()
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.AllowedOrigins = nil

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty allowed_origins")
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.DashboardPort = 0
	cfg.Server.LogLevel = "bad"

	err := validate(cfg)
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "dashboard_port") || !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention multiple fields: %v", err)
	}
}

func TestIsValidEnum(t *testing.T) {
	if !isValidEnum("INFO", ValidLogLevels) {
		t.Error("INFO should be valid (case-insensitive)")
	}
	if isValidEnum("verbose", ValidLogLevels) {
		t.Error("verbose should not be valid")
	}
}
