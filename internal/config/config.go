// Package config loads the debug-info filter's configuration from a YAML
// file overridden by environment variables, the same two-stage pattern
// the host log-shipping agent uses (file first, defaults filled in,
// environment last), reduced to the parameters the filter's iterator
// actually consumes (spec.md §6 "EXTERNAL INTERFACES") plus the ambient
// server/metrics/tracing/logging sections every deployment needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/efficios/go-debuginfofilter/pkg/ierrors"
)

// DebugInfo carries the four parameters spec.md §6 says are consumed at
// iterator creation, plus the supplemented resolved-info disk cache
// toggle (SPEC_FULL.md §5 item 5).
type DebugInfo struct {
	FieldName         string `yaml:"field_name"`
	Dir               string `yaml:"dir"`
	TargetPrefix      string `yaml:"target_prefix"`
	FullPath          bool   `yaml:"full_path"`
	ResolvedInfoCache bool   `yaml:"resolved_info_cache"`
	WatchDir          bool   `yaml:"watch_dir"`
}

// App carries ambient identity/logging configuration.
type App struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Server configures the /healthz and /debug/cache introspection HTTP
// endpoints (SPEC_FULL.md §2, analogous to the host agent's own HTTP
// server).
type Server struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Metrics configures the Prometheus scrape endpoint (internal/metrics).
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Tracing configures OpenTelemetry export (internal/tracing.Config).
type Tracing struct {
	Enabled        bool              `yaml:"enabled"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Exporter       string            `yaml:"exporter"` // "jaeger", "otlp"
	Endpoint       string            `yaml:"endpoint"`
	SampleRatio    float64           `yaml:"sample_ratio"`
	Headers        map[string]string `yaml:"headers"`
}

// Config is the filter's full configuration surface.
type Config struct {
	App       App       `yaml:"app"`
	DebugInfo DebugInfo `yaml:"debug_info"`
	Server    Server    `yaml:"server"`
	Metrics   Metrics   `yaml:"metrics"`
	Tracing   Tracing   `yaml:"tracing"`
}

// LoadConfig reads configFile (if non-empty), applies defaults for every
// zero-valued field, then applies environment variable overrides, and
// finally validates the result.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return ierrors.New(ierrors.CodeConfigInvalid, "config", "load", "read config file").Wrap(err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return ierrors.New(ierrors.CodeConfigInvalid, "config", "load", "parse config file").Wrap(err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "debuginfofilter"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "v1"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}

	if cfg.DebugInfo.FieldName == "" {
		cfg.DebugInfo.FieldName = "debug_info"
	}
	if cfg.DebugInfo.Dir == "" {
		cfg.DebugInfo.Dir = "/usr/lib/debug"
	}
	// TargetPrefix and FullPath default to their zero values ("" and
	// false) per spec.md §6 — nothing to fill in.

	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8401
	}

	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "0.0.0.0"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 8001
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	cfg.Metrics.Enabled = true

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.App.Name
	}
	if cfg.Tracing.ServiceVersion == "" {
		cfg.Tracing.ServiceVersion = cfg.App.Version
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "otlp"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	cfg.App.LogLevel = getEnvString("DEBUGINFOFILTER_LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnvString("DEBUGINFOFILTER_LOG_FORMAT", cfg.App.LogFormat)

	cfg.DebugInfo.FieldName = getEnvString("DEBUGINFOFILTER_FIELD_NAME", cfg.DebugInfo.FieldName)
	cfg.DebugInfo.Dir = getEnvString("DEBUGINFOFILTER_DEBUG_INFO_DIR", cfg.DebugInfo.Dir)
	cfg.DebugInfo.TargetPrefix = getEnvString("DEBUGINFOFILTER_TARGET_PREFIX", cfg.DebugInfo.TargetPrefix)
	cfg.DebugInfo.FullPath = getEnvBool("DEBUGINFOFILTER_FULL_PATH", cfg.DebugInfo.FullPath)
	cfg.DebugInfo.ResolvedInfoCache = getEnvBool("DEBUGINFOFILTER_RESOLVED_INFO_CACHE", cfg.DebugInfo.ResolvedInfoCache)
	cfg.DebugInfo.WatchDir = getEnvBool("DEBUGINFOFILTER_WATCH_DIR", cfg.DebugInfo.WatchDir)

	cfg.Server.Enabled = getEnvBool("DEBUGINFOFILTER_SERVER_ENABLED", cfg.Server.Enabled)
	cfg.Server.Host = getEnvString("DEBUGINFOFILTER_SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("DEBUGINFOFILTER_SERVER_PORT", cfg.Server.Port)

	cfg.Metrics.Enabled = getEnvBool("DEBUGINFOFILTER_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Port = getEnvInt("DEBUGINFOFILTER_METRICS_PORT", cfg.Metrics.Port)

	cfg.Tracing.Enabled = getEnvBool("DEBUGINFOFILTER_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnvString("DEBUGINFOFILTER_TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = getEnvString("DEBUGINFOFILTER_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// ValidateConfig rejects a configuration the filter cannot start with.
func ValidateConfig(cfg *Config) error {
	v := &validator{cfg: cfg}
	v.validateApp()
	v.validateDebugInfo()
	v.validateServer()
	v.validateMetrics()
	v.validateTracing()
	return v.result()
}

type validator struct {
	cfg    *Config
	errs   []string
}

func (v *validator) fail(component, msg string) {
	v.errs = append(v.errs, fmt.Sprintf("%s: %s", component, msg))
}

func (v *validator) validateApp() {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[v.cfg.App.LogLevel] {
		v.fail("app", fmt.Sprintf("invalid log level: %s", v.cfg.App.LogLevel))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[v.cfg.App.LogFormat] {
		v.fail("app", fmt.Sprintf("invalid log format: %s", v.cfg.App.LogFormat))
	}
}

func (v *validator) validateDebugInfo() {
	if v.cfg.DebugInfo.FieldName == "" {
		v.fail("debug_info", "field_name cannot be empty")
	}
	if v.cfg.DebugInfo.Dir == "" {
		v.fail("debug_info", "dir cannot be empty")
	}
}

func (v *validator) validateServer() {
	if !v.cfg.Server.Enabled {
		return
	}
	if v.cfg.Server.Port <= 0 || v.cfg.Server.Port > 65535 {
		v.fail("server", fmt.Sprintf("invalid port: %d", v.cfg.Server.Port))
	}
}

func (v *validator) validateMetrics() {
	if !v.cfg.Metrics.Enabled {
		return
	}
	if v.cfg.Metrics.Port <= 0 || v.cfg.Metrics.Port > 65535 {
		v.fail("metrics", fmt.Sprintf("invalid port: %d", v.cfg.Metrics.Port))
	}
	if v.cfg.Server.Enabled && v.cfg.Server.Port == v.cfg.Metrics.Port {
		v.fail("metrics", "metrics port conflicts with server port")
	}
}

func (v *validator) validateTracing() {
	if !v.cfg.Tracing.Enabled {
		return
	}
	switch v.cfg.Tracing.Exporter {
	case "jaeger", "otlp":
	default:
		v.fail("tracing", fmt.Sprintf("unsupported exporter: %s", v.cfg.Tracing.Exporter))
	}
	if v.cfg.Tracing.Endpoint == "" {
		v.fail("tracing", "endpoint cannot be empty when enabled")
	}
}

func (v *validator) result() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ierrors.New(ierrors.CodeConfigInvalid, "config", "validate",
		strings.Join(v.errs, "; "))
}
