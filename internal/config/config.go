package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. EDALENS_API_KEY.
const EnvPrefix = "EDALENS"

// Global configuration structure.
type Global struct {
	// Language model
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Model       string  `mapstructure:"model" yaml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`

	// Token budget of the dataset summary placed in a prompt
	ContextTokens int `mapstructure:"context_tokens" yaml:"context_tokens"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Server
	ListenAddr    string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxUploadMB   int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	SessionTTLMin int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`

	// Loading and charts
	Separator  string `mapstructure:"separator" yaml:"separator"`
	Encoding   string `mapstructure:"encoding" yaml:"encoding"`
	SampleRows int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	TopN       int    `mapstructure:"top_n" yaml:"top_n"`
	HistBins   int    `mapstructure:"hist_bins" yaml:"hist_bins"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists every settable key in file order.
var Keys = []string{
	"api_key", "model", "base_url", "max_tokens", "temperature", "context_tokens",
	"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
	"listen_addr", "max_upload_mb", "session_ttl_min",
	"separator", "encoding", "sample_rows", "top_n", "hist_bins",
	"log_level", "log_format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("model", "openai/gpt-4o-mini")
	v.SetDefault("base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.5)
	v.SetDefault("context_tokens", 3000)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("listen_addr", "127.0.0.1:8501")
	v.SetDefault("max_upload_mb", 200)
	v.SetDefault("session_ttl_min", 60)
	v.SetDefault("separator", "comma")
	v.SetDefault("encoding", "utf-8")
	v.SetDefault("sample_rows", 0)
	v.SetDefault("top_n", 20)
	v.SetDefault("hist_bins", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Defaults returns the built-in configuration, ignoring files and env.
func Defaults() *Global {
	v := viper.New()
	setDefaults(v)
	var c Global
	_ = v.Unmarshal(&c)
	return &c
}

// DefaultPath is ~/.edalens/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".edalens", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to DefaultPath, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) { return load(cfgFile, true) }

// LoadFile is Load without the environment. It is the base for edits that
// are written back to the file.
func LoadFile(cfgFile string) (*Global, error) { return load(cfgFile, false) }

func load(cfgFile string, env bool) (*Global, error) {
	v := viper.New()
	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.AutomaticEnv()
	}
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Set assigns one key from its string form.
func (c *Global) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: expected an integer, got %q", key, value)
		}
		return n, nil
	}
	var err error
	switch strings.ToLower(key) {
	case "api_key":
		c.APIKey = value
	case "model":
		c.Model = value
	case "base_url":
		c.BaseURL = value
	case "max_tokens":
		c.MaxTokens, err = atoi()
	case "temperature":
		c.Temperature, err = strconv.ParseFloat(value, 64)
		if err != nil {
			err = fmt.Errorf("temperature: expected a number, got %q", value)
		}
	case "context_tokens":
		c.ContextTokens, err = atoi()
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = atoi()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = atoi()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = atoi()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = atoi()
	case "listen_addr":
		c.ListenAddr = value
	case "max_upload_mb":
		c.MaxUploadMB, err = atoi()
	case "session_ttl_min":
		c.SessionTTLMin, err = atoi()
	case "separator":
		c.Separator = value
	case "encoding":
		c.Encoding = value
	case "sample_rows":
		c.SampleRows, err = atoi()
	case "top_n":
		c.TopN, err = atoi()
	case "hist_bins":
		c.HistBins, err = atoi()
	case "log_level":
		c.LogLevel = value
	case "log_format":
		c.LogFormat = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}

// Redacted returns a copy safe to print.
func (c Global) Redacted() Global {
	if n := len(c.APIKey); n > 0 {
		if n > 8 {
			c.APIKey = c.APIKey[:4] + strings.Repeat("*", n-8) + c.APIKey[n-4:]
		} else {
			c.APIKey = strings.Repeat("*", n)
		}
	}
	return c
}

// HTTPTimeout is the request timeout for language-model calls.
func (c *Global) HTTPTimeout() time.Duration { return time.Duration(c.HTTPTimeoutSec) * time.Second }

// RetryBaseDelay is the first backoff delay.
func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay caps the backoff delay.
func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// SessionTTL is how long an idle uploaded dataset is kept.
func (c *Global) SessionTTL() time.Duration { return time.Duration(c.SessionTTLMin) * time.Minute }
