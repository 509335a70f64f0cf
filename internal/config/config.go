package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultBaseURL        = "https://integrate.api.nvidia.com/v1"
	DefaultPort           = 3000
	DefaultMaxBodyLogSize = 2048
)

// Config is the process configuration. It is built once at startup and only read afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Debug     DebugConfig     `yaml:"debug"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the inbound listener
type ServerConfig struct {
	Port int `yaml:"port"`
}

// UpstreamConfig describes the inference API requests are forwarded to
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ReasoningConfig holds the reasoning display and thinking mode toggles
type ReasoningConfig struct {
	// Show wraps upstream reasoning in <think> markup inside the content field.
	Show bool `yaml:"show"`
	// ThinkingMode asks the upstream to produce extended reasoning.
	ThinkingMode bool `yaml:"thinking_mode"`
}

// DebugConfig contains the request logging switches
type DebugConfig struct {
	LogRequests    bool `yaml:"log_requests"`
	LogHeaders     bool `yaml:"log_headers"`
	LogBodies      bool `yaml:"log_bodies"`
	MaxBodyLogSize int  `yaml:"max_body_log_size"`
	RedactHeaders  bool `yaml:"redact_headers"`
}

// LogConfig selects logger level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: DefaultPort},
		Upstream: UpstreamConfig{BaseURL: DefaultBaseURL},
		Debug: DebugConfig{
			MaxBodyLogSize: DefaultMaxBodyLogSize,
			RedactHeaders:  true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the process configuration. The YAML file at path is optional; an
// empty path or a missing file leaves the defaults in place. Variables from a
// .env file in the working directory are loaded next, without overriding the
// real environment, and environment variables are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("NIM_API_BASE", &c.Upstream.BaseURL)
	str("NIM_API_KEY", &c.Upstream.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	for key, dst := range map[string]*bool{
		"SHOW_REASONING":       &c.Reasoning.Show,
		"ENABLE_THINKING_MODE": &c.Reasoning.ThinkingMode,
		"LOG_REQUESTS":         &c.Debug.LogRequests,
		"LOG_HEADERS":          &c.Debug.LogHeaders,
		"LOG_BODIES":           &c.Debug.LogBodies,
		"REDACT_HEADERS":       &c.Debug.RedactHeaders,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}

	if err := integer("PORT", &c.Server.Port); err != nil {
		return err
	}
	return integer("MAX_LOG_BODY_SIZE", &c.Debug.MaxBodyLogSize)
}

// Validate checks values that would make the server unusable. A missing API key
// is not an error here; requests fail individually until one is configured.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream base url %q must be an absolute http(s) url", c.Upstream.BaseURL)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Debug.MaxBodyLogSize < 0 {
		return fmt.Errorf("max body log size must not be negative")
	}
	return nil
}

// HasAPIKey reports whether an upstream credential is configured.
func (c *Config) HasAPIKey() bool {
	return c.Upstream.APIKey != ""
}

// ChatCompletionsURL is the upstream endpoint requests are forwarded to.
func (c *Config) ChatCompletionsURL() string {
	return strings.TrimRight(c.Upstream.BaseURL, "/") + "/chat/completions"
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
