// Package config loads server settings from an optional YAML file and the
// environment. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/sharpness-board/internal/analysis"
)

type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	AnalysisBaseURL     string               `yaml:"analysis_base_url"`
	AnalysisTimeout     time.Duration        `yaml:"analysis_timeout"`
	AnalysisMaxConns    int                  `yaml:"analysis_max_conns"`
	AnalysisStalePolicy analysis.StalePolicy `yaml:"analysis_stale_policy"`

	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`

	RedisURL       string        `yaml:"redis_url"`
	RedisKeyPrefix string        `yaml:"redis_key_prefix"`
	RedisLatestTTL time.Duration `yaml:"redis_latest_ttl"`
	RedisQueueSize int           `yaml:"redis_queue_size"`

	MessagesDir string `yaml:"messages_dir"`

	WSOriginPatterns []string      `yaml:"ws_origin_patterns"`
	WSPingInterval   time.Duration `yaml:"ws_ping_interval"`
}

func defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:            ":8080",
		AnalysisMaxConns:    64,
		AnalysisStalePolicy: analysis.DropStale,
		SessionIdleTTL:      24 * time.Hour,
		SweepInterval:       5 * time.Minute,
		RedisKeyPrefix:      "board:view:",
		RedisLatestTTL:      24 * time.Hour,
		RedisQueueSize:      256,
		WSPingInterval:      30 * time.Second,
	}
}

// Load reads BOARD_CONFIG_FILE when set, then applies environment overrides.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("BOARD_CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_BASE_URL")); v != "" {
		cfg.AnalysisBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_TIMEOUT")); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("ANALYSIS_TIMEOUT: %w", err)
		}
		cfg.AnalysisTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_MAX_CONNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisMaxConns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_STALE_POLICY")); v != "" {
		cfg.AnalysisStalePolicy = analysis.StalePolicy(v)
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_IDLE_TTL")); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			cfg.SessionIdleTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_SWEEP_INTERVAL")); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_URL")); v != "" {
		cfg.RedisURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX")); v != "" {
		cfg.RedisKeyPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_LATEST_TTL")); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			cfg.RedisLatestTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RedisQueueSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGES_DIR")); v != "" {
		cfg.MessagesDir = v
	}
	if v := strings.TrimSpace(os.Getenv("WS_ORIGIN_PATTERNS")); v != "" {
		cfg.WSOriginPatterns = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("WS_PING_INTERVAL")); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			cfg.WSPingInterval = d
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) validate() error {
	c.AnalysisBaseURL = strings.TrimRight(strings.TrimSpace(c.AnalysisBaseURL), "/")
	if c.AnalysisBaseURL == "" {
		return errors.New("ANALYSIS_BASE_URL is required")
	}
	if !strings.HasPrefix(c.AnalysisBaseURL, "http://") && !strings.HasPrefix(c.AnalysisBaseURL, "https://") {
		return fmt.Errorf("ANALYSIS_BASE_URL must be http(s): %q", c.AnalysisBaseURL)
	}
	policy, err := analysis.ParseStalePolicy(string(c.AnalysisStalePolicy))
	if err != nil {
		return fmt.Errorf("ANALYSIS_STALE_POLICY: %w", err)
	}
	c.AnalysisStalePolicy = policy
	if c.AnalysisTimeout < 0 {
		return errors.New("ANALYSIS_TIMEOUT must not be negative")
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
