package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/dataloom-agent/internal/scrape"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

// Global configuration structure.
type Global struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key" toml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider" toml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model" toml:"model"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url" toml:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" toml:"temperature"`

	// HTTP/Retry configuration for the LLM runtime
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec" toml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts" toml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms" toml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms" toml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host" toml:"ollama_host"`

	// Server
	ListenAddr        string `mapstructure:"listen_addr" yaml:"listen_addr" toml:"listen_addr"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec" toml:"request_timeout_sec"`
	MaxUploadMB       int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" toml:"max_upload_mb"`

	// Data handling
	MaxRows         int    `mapstructure:"max_rows" yaml:"max_rows" toml:"max_rows"`
	SampleRows      int    `mapstructure:"sample_rows" yaml:"sample_rows" toml:"sample_rows"`
	ImageMaxBytes   int    `mapstructure:"image_max_bytes" yaml:"image_max_bytes" toml:"image_max_bytes"`
	ScrapeUserAgent string `mapstructure:"scrape_user_agent" yaml:"scrape_user_agent" toml:"scrape_user_agent"`

	// Logging
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" toml:"log_dir"`
	Debug  bool   `mapstructure:"debug" yaml:"debug" toml:"debug"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.dataloom/config.yaml, creating the directory if necessary.
// A path ending in .toml is written as TOML, anything else as YAML.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	var (
		b   []byte
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		b, err = toml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal toml: %w", err)
		}
	} else {
		b, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
	}
	if err := utils.SafeWriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATALOOM")
	v.AutomaticEnv()

	v.SetDefault("api_key", "")
	v.SetDefault("provider", "openai")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("base_url", "")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("temperature", 0.3)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	// Server defaults
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("request_timeout_sec", 180)
	v.SetDefault("max_upload_mb", 32)
	// Data defaults
	v.SetDefault("max_rows", 100000)
	v.SetDefault("sample_rows", 5)
	v.SetDefault("image_max_bytes", 100000)
	v.SetDefault("scrape_user_agent", scrape.DefaultUserAgent)
	v.SetDefault("log_dir", "logs")
	v.SetDefault("debug", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyEnvFallbacks(&c)
	return &c, nil
}

// applyEnvFallbacks honors the conventional provider variables when the
// DATALOOM_* equivalents are unset.
func applyEnvFallbacks(c *Global) {
	if c.APIKey == "" {
		switch c.Provider {
		case "openrouter":
			c.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "gemini":
			c.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		host, _, err := net.SplitHostPort(c.ListenAddr)
		if err != nil {
			host = ""
		}
		c.ListenAddr = net.JoinHostPort(host, port)
	}
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".dataloom"), nil
}
