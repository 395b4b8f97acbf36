// Package config loads the client configuration.
//
// SOURCES, IN ORDER OF PRECEDENCE (last wins):
//  1. Defaults (Default())
//  2. Optional YAML file (QA_CONFIG or --config)
//  3. Environment variables (QA_*)
//
// The result is validated once at start-up and treated as immutable.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Vote modes accepted by VoteMode.
const (
	VoteModeEcho       = "echo"
	VoteModeOptimistic = "optimistic"
)

// Config holds the client configuration.
type Config struct {
	// Forum API
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Outbound politeness: requests per second and burst. RateLimit <= 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// Session
	TokenDB    string `yaml:"token_db"`
	SignInPath string `yaml:"sign_in_path"`

	// Votes. Optimistic mode is a documented degradation and must be
	// acknowledged with AllowOptimistic.
	VoteMode        string `yaml:"vote_mode"`
	AllowOptimistic bool   `yaml:"allow_optimistic"`

	// Lists
	PageSize int `yaml:"page_size"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:    "http://localhost:8080/api",
		Timeout:    10 * time.Second,
		RateLimit:  10,
		RateBurst:  5,
		TokenDB:    defaultTokenDB(),
		SignInPath: "/login",
		VoteMode:   VoteModeEcho,
		PageSize:   10,
		LogLevel:   "warn",
		LogFormat:  "text",
	}
}

// Load builds the configuration from defaults, the file named by QA_CONFIG
// (if any) and the environment.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("QA_CONFIG"))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnvString("QA_BASE_URL", c.BaseURL)
	c.Timeout = getEnvDuration("QA_TIMEOUT", c.Timeout)
	c.RateLimit = getEnvFloat("QA_RATE_LIMIT", c.RateLimit)
	c.RateBurst = getEnvInt("QA_RATE_BURST", c.RateBurst)
	c.TokenDB = getEnvString("QA_TOKEN_DB", c.TokenDB)
	c.SignInPath = getEnvString("QA_SIGN_IN_PATH", c.SignInPath)
	c.VoteMode = getEnvString("QA_VOTE_MODE", c.VoteMode)
	c.AllowOptimistic = getEnvBool("QA_ALLOW_OPTIMISTIC", c.AllowOptimistic)
	c.PageSize = getEnvInt("QA_PAGE_SIZE", c.PageSize)
	c.LogLevel = getEnvString("QA_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvString("QA_LOG_FORMAT", c.LogFormat)
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: base_url %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	if c.TokenDB == "" {
		return fmt.Errorf("config: token_db must be set")
	}
	switch c.VoteMode {
	case VoteModeEcho:
	case VoteModeOptimistic:
		if !c.AllowOptimistic {
			return fmt.Errorf("config: vote_mode %q requires allow_optimistic: the backend must guarantee a fixed per-action delta and forbid double voting", c.VoteMode)
		}
	default:
		return fmt.Errorf("config: unknown vote_mode %q (want %q or %q)", c.VoteMode, VoteModeEcho, VoteModeOptimistic)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	return nil
}

func defaultTokenDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.db"
	}
	return filepath.Join(home, ".campus-client", "session.db")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
