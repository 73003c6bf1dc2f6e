package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SessionMemory = "memory"
	SessionFile   = "file"
	SessionRedis  = "redis"
)

// Config is the environment driven configuration shared by every command.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"newsroom"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"console"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`

	Model       string   `env:"NEWSROOM_MODEL" envDefault:"google/gemini-2.0-flash-exp:free"`
	Temperature float64  `env:"NEWSROOM_TEMPERATURE" envDefault:"0"`
	WordLimit   int      `env:"NEWSROOM_WORD_LIMIT" envDefault:"200"`
	Editor      bool     `env:"NEWSROOM_EDITOR" envDefault:"true"`
	MaxSteps    int      `env:"NEWSROOM_MAX_STEPS" envDefault:"25"`
	ConfigFile  string   `env:"NEWSROOM_CONFIG"`
	Tools       []string `env:"NEWSROOM_TOOLS" envSeparator:","` // assistant tool name globs; empty means all

	RetryMaxAttempts     int           `env:"NEWSROOM_RETRY_MAX_ATTEMPTS" envDefault:"5"`
	RetryBaseDelay       time.Duration `env:"NEWSROOM_RETRY_BASE_DELAY" envDefault:"5s"` // 0 retries without waiting
	RetryHonorRetryAfter bool          `env:"NEWSROOM_RETRY_HONOR_RETRY_AFTER" envDefault:"false"`

	SessionBackend string `env:"SESSION_BACKEND" envDefault:"memory"`
	SessionDir     string `env:"SESSION_DIR" envDefault:".newsroom/sessions"`
	RedisURL       string `env:"REDIS_URL"`

	SearchURL       string `env:"SEARCH_URL" envDefault:"https://lite.duckduckgo.com/lite/"`
	SearchCacheSize int    `env:"SEARCH_CACHE_SIZE" envDefault:"128"`
	SearchRetries   int    `env:"SEARCH_RETRIES" envDefault:"2"`
}

// LoadEnvFiles loads .env files that exist. Variables already set in the
// environment win.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses environment variables, applies NEWSROOM_CONFIG when set and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if path := strings.TrimSpace(cfg.ConfigFile); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// File is the optional YAML overlay for pipeline knobs. Fields left out keep
// their environment value.
type File struct {
	Version     int      `yaml:"version"`
	Model       *string  `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	WordLimit   *int     `yaml:"word_limit"`
	Editor      *bool    `yaml:"editor"`
	MaxSteps    *int     `yaml:"max_steps"`
	Tools       []string `yaml:"tools"`
	Retry       struct {
		MaxAttempts     *int    `yaml:"max_attempts"`
		BaseDelay       *string `yaml:"base_delay"`
		HonorRetryAfter *bool   `yaml:"honor_retry_after"`
	} `yaml:"retry"`
	Session struct {
		Backend  *string `yaml:"backend"`
		Dir      *string `yaml:"dir"`
		RedisURL *string `yaml:"redis_url"`
	} `yaml:"session"`
}

func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := decodeYAMLStrict(b, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if f.Version == 0 {
		f.Version = 1
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("%s: unsupported version %d", path, f.Version)
	}
	return &f, nil
}

func decodeYAMLStrict(b []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func (c *Config) ApplyFile(path string) error {
	f, err := LoadFile(path)
	if err != nil {
		return err
	}
	if f.Model != nil {
		c.Model = *f.Model
	}
	if f.Temperature != nil {
		c.Temperature = *f.Temperature
	}
	if f.WordLimit != nil {
		c.WordLimit = *f.WordLimit
	}
	if f.Editor != nil {
		c.Editor = *f.Editor
	}
	if f.MaxSteps != nil {
		c.MaxSteps = *f.MaxSteps
	}
	if f.Retry.MaxAttempts != nil {
		c.RetryMaxAttempts = *f.Retry.MaxAttempts
	}
	if f.Retry.BaseDelay != nil {
		d, err := time.ParseDuration(*f.Retry.BaseDelay)
		if err != nil {
			return fmt.Errorf("%s: retry.base_delay: %w", path, err)
		}
		c.RetryBaseDelay = d
	}
	if f.Retry.HonorRetryAfter != nil {
		c.RetryHonorRetryAfter = *f.Retry.HonorRetryAfter
	}
	if f.Tools != nil {
		c.Tools = f.Tools
	}
	if f.Session.Backend != nil {
		c.SessionBackend = *f.Session.Backend
	}
	if f.Session.Dir != nil {
		c.SessionDir = *f.Session.Dir
	}
	if f.Session.RedisURL != nil {
		c.RedisURL = *f.Session.RedisURL
	}
	return nil
}

func (c *Config) Validate() error {
	c.SessionBackend = strings.ToLower(strings.TrimSpace(c.SessionBackend))
	switch c.SessionBackend {
	case SessionMemory:
	case SessionFile:
		if strings.TrimSpace(c.SessionDir) == "" {
			return fmt.Errorf("SESSION_DIR is required when SESSION_BACKEND is file")
		}
	case SessionRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND is redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q (want memory, file or redis)", c.SessionBackend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want console or json)", c.LogFormat)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("NEWSROOM_MODEL must not be empty")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("NEWSROOM_TEMPERATURE must be between 0 and 2, got %v", c.Temperature)
	}
	if c.WordLimit <= 0 {
		return fmt.Errorf("NEWSROOM_WORD_LIMIT must be positive, got %d", c.WordLimit)
	}
	if c.RetryMaxAttempts <= 0 {
		return fmt.Errorf("NEWSROOM_RETRY_MAX_ATTEMPTS must be positive, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("NEWSROOM_RETRY_BASE_DELAY must not be negative")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("NEWSROOM_MAX_STEPS must not be negative (0 disables the bound)")
	}
	if c.SearchCacheSize < 0 {
		return fmt.Errorf("SEARCH_CACHE_SIZE must not be negative")
	}
	if c.SearchRetries < 0 {
		return fmt.Errorf("SEARCH_RETRIES must not be negative")
	}
	return nil
}

// RequireAPIKey reports a missing OpenRouter key; only commands that call the
// model need one.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.OpenRouterAPIKey) == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
