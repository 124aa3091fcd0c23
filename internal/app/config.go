package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// VOICEVOX engine
	EngineURL        string        `yaml:"engine_url"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	HealthTimeout    time.Duration `yaml:"health_timeout"`
	SpeakersTimeout  time.Duration `yaml:"speakers_timeout"`
	MaxAudioBytes    int64         `yaml:"max_audio_bytes"`

	CORSOrigins []string `yaml:"cors_origins"`

	// Logging
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`

	// Error monitoring
	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// HTTPAddr is the listen address derived from Port.
func (c Config) HTTPAddr() string {
	return ":" + c.Port
}

func defaultConfig() Config {
	return Config{
		Port:             "8080",
		EngineURL:        "http://localhost:50021",
		QueryTimeout:     30 * time.Second,
		SynthesisTimeout: 60 * time.Second,
		HealthTimeout:    5 * time.Second,
		SpeakersTimeout:  10 * time.Second,
		MaxAudioBytes:    50 * 1024 * 1024,
		CORSOrigins:      []string{"*"},
		LogLevel:         "info",
		Environment:      "development",
		MetricsEnabled:   true,
	}
}

// LoadConfig reads the YAML file named by CONFIG_FILE (if any) and then applies
// environment overrides. Env values win over the file.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFromEnv builds a Config from defaults and environment variables only.
func LoadConfigFromEnv() Config {
	return applyEnv(defaultConfig())
}

func applyEnv(cfg Config) Config {
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.EngineURL = getenv("VOICEVOX_ENGINE_URL", cfg.EngineURL)
	cfg.QueryTimeout = getenvDuration("ENGINE_QUERY_TIMEOUT", cfg.QueryTimeout)
	cfg.SynthesisTimeout = getenvDuration("ENGINE_SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	cfg.HealthTimeout = getenvDuration("ENGINE_HEALTH_TIMEOUT", cfg.HealthTimeout)
	cfg.SpeakersTimeout = getenvDuration("ENGINE_SPEAKERS_TIMEOUT", cfg.SpeakersTimeout)
	cfg.MaxAudioBytes = int64(getenvIntClamped("MAX_AUDIO_BYTES", int(cfg.MaxAudioBytes), 1024, 1<<30))

	if origins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS")); origins != nil {
		cfg.CORSOrigins = origins
	}

	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getenvIntClamped("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB, 0, 1024)
	cfg.LogMaxBackups = getenvIntClamped("LOG_MAX_BACKUPS", cfg.LogMaxBackups, 0, 100)
	cfg.LogMaxAgeDays = getenvIntClamped("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays, 0, 365)

	cfg.SentryDSN = getenv("SENTRY_DSN", cfg.SentryDSN)
	cfg.Environment = getenv("ENVIRONMENT", cfg.Environment)
	cfg.MetricsEnabled = getenvBool("METRICS_ENABLED", cfg.MetricsEnabled)
	return cfg
}

// Validate rejects configuration the gateway cannot start with.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.EngineURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("VOICEVOX_ENGINE_URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("VOICEVOX_ENGINE_URL: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("VOICEVOX_ENGINE_URL: missing host"))
	}

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT: invalid port %q", c.Port))
	}

	timeouts := map[string]time.Duration{
		"ENGINE_QUERY_TIMEOUT":     c.QueryTimeout,
		"ENGINE_SYNTHESIS_TIMEOUT": c.SynthesisTimeout,
		"ENGINE_HEALTH_TIMEOUT":    c.HealthTimeout,
		"ENGINE_SPEAKERS_TIMEOUT":  c.SpeakersTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive, got %v", name, d))
		}
	}

	if c.MaxAudioBytes <= 0 {
		errs = append(errs, errors.New("MAX_AUDIO_BYTES: must be positive"))
	}
	return errors.Join(errs...)
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped reads an int env var, clamping it to [min, max].
// Unset or unparsable values fall back to def.
func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
