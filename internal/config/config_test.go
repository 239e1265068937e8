package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nonexistent.toml"))
	if err != nil {
		t.Fatalf("Load with missing explicit file: %v", err)
	}
	if cfg.Server.DashboardPort != DefaultDashboardPort {
		t.Errorf("DashboardPort: got %d, want %d", cfg.Server.DashboardPort, DefaultDashboardPort)
	}
}

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 9091
log_level = "debug"
data_dir = "` + dir + `"

[build]
manifest_name = "package.json"
cache_enabled = true

[farm]
enabled = true
default_rate = 5.0
default_burst = 2
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 9091 {
		t.Errorf("DashboardPort: got %d, want 9091", cfg.Server.DashboardPort)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if !cfg.Farm.Enabled {
		t.Error("expected farm.enabled to be true")
	}
	if cfg.Farm.DefaultRate != 5.0 {
		t.Errorf("Farm.DefaultRate: got %v, want 5.0", cfg.Farm.DefaultRate)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
dashboard_port = 7678
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("BUILDCORE_SERVER_DASHBOARD_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.DashboardPort != 8888 {
		t.Errorf("DashboardPort with env override: got %d, want 8888", cfg.Server.DashboardPort)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
dashboard_port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_ValidationFailure_BadLogLevel(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
dashboard_port = 7678
log_level = "shout"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.DashboardPort != DefaultDashboardPort {
		t.Errorf("DashboardPort: got %d, want %d", cfg.Server.DashboardPort, DefaultDashboardPort)
	}
	if cfg.Farm.RetryMaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("RetryMaxAttempts: got %d, want %d", cfg.Farm.RetryMaxAttempts, DefaultRetryMaxAttempts)
	}
	if cfg.Farm.CBEnabled != true {
		t.Error("CBEnabled: got false, want true")
	}
	if cfg.Build.MaxMemoryCacheEntries != DefaultMaxMemoryCacheEntries {
		t.Errorf("MaxMemoryCacheEntries: got %d, want %d", cfg.Build.MaxMemoryCacheEntries, DefaultMaxMemoryCacheEntries)
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
dashboard_port = 9998
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.DashboardPort != 9998 {
		t.Errorf("DashboardPort after import: got %d, want 9998", cfg.Server.DashboardPort)
	}

	set(DefaultConfig())
}
