package config

import "testing"

func TestApplyDefaultsFillsEveryZeroValuedField(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.App.Name != "debuginfofilter" {
		t.Errorf("expected default app name, got %q", cfg.App.Name)
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", cfg.App.LogLevel)
	}
	if cfg.DebugInfo.FieldName != "debug_info" {
		t.Errorf("expected default debug_info field name, got %q", cfg.DebugInfo.FieldName)
	}
	if cfg.DebugInfo.Dir != "/usr/lib/debug" {
		t.Errorf("expected default debug-info dir, got %q", cfg.DebugInfo.Dir)
	}
	if cfg.DebugInfo.FullPath {
		t.Error("expected full_path to default to false")
	}
	if cfg.DebugInfo.ResolvedInfoCache {
		t.Error("expected resolved_info_cache to default to false")
	}
	if cfg.Server.Port != 8401 {
		t.Errorf("expected default server port, got %d", cfg.Server.Port)
	}
	if cfg.Metrics.Port != 8001 {
		t.Errorf("expected default metrics port, got %d", cfg.Metrics.Port)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to default to enabled")
	}
}

func TestApplyDefaultsLeavesExplicitValuesUntouched(t *testing.T) {
	cfg := &Config{DebugInfo: DebugInfo{FieldName: "custom_field", Dir: "/opt/debug"}}
	applyDefaults(cfg)

	if cfg.DebugInfo.FieldName != "custom_field" {
		t.Errorf("expected explicit field name preserved, got %q", cfg.DebugInfo.FieldName)
	}
	if cfg.DebugInfo.Dir != "/opt/debug" {
		t.Errorf("expected explicit dir preserved, got %q", cfg.DebugInfo.Dir)
	}
}

func TestApplyEnvironmentOverridesWinOverDefaults(t *testing.T) {
	t.Setenv("DEBUGINFOFILTER_DEBUG_INFO_DIR", "/env/debug")
	t.Setenv("DEBUGINFOFILTER_FULL_PATH", "true")
	t.Setenv("DEBUGINFOFILTER_RESOLVED_INFO_CACHE", "true")
	t.Setenv("DEBUGINFOFILTER_WATCH_DIR", "true")

	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if cfg.DebugInfo.Dir != "/env/debug" {
		t.Errorf("expected env override to win, got %q", cfg.DebugInfo.Dir)
	}
	if !cfg.DebugInfo.FullPath {
		t.Error("expected full_path env override to apply")
	}
	if !cfg.DebugInfo.ResolvedInfoCache {
		t.Error("expected resolved_info_cache env override to apply")
	}
	if !cfg.DebugInfo.WatchDir {
		t.Error("expected watch_dir env override to apply")
	}
}
