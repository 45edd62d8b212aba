// Package config loads EfficacyLens settings from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "EFFICACYLENS"
	configName = "efficacylens"

	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 8192
)

type Config struct {
	Debug     bool            `mapstructure:"debug"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Render    RenderConfig    `mapstructure:"render"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Synonyms  SynonymsConfig  `mapstructure:"synonyms"`
}

type LLMConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	MaxTokens  int64         `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type StoreConfig struct {
	// Path is the SQLite run history file. Empty disables history.
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type RenderConfig struct {
	ChromePath string        `mapstructure:"chrome_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP collector address such as localhost:4318.
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type SynonymsConfig struct {
	// Path overrides the embedded disease synonym table.
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("llm.provider", efficacylens.ProviderAnthropic)
	v.SetDefault("llm.model", DefaultModel)
	v.SetDefault("llm.max_tokens", DefaultMaxTokens)
	v.SetDefault("llm.timeout", 5*time.Minute)
	// Service failures surface per call; operators opt in to transport retries.
	v.SetDefault("llm.max_retries", 0)
	v.SetDefault("store.path", defaultStorePath())
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_upload_bytes", 40<<20)
	v.SetDefault("server.request_timeout", 10*time.Minute)
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.timeout", 30*time.Second)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "efficacylens")
	v.SetDefault("synonyms.path", "")
	// Registered so AutomaticEnv can see it when no config file sets it.
	v.SetDefault("llm.api_key", "")
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "efficacylens.db"
	}
	return filepath.Join(home, ".local", "share", "efficacylens", "runs.db")
}

// Load reads cfgFile when given, otherwise efficacylens.yaml from the working
// directory or ~/.config/efficacylens. EFFICACYLENS_* variables override file
// values. An empty llm.api_key falls back to ANTHROPIC_API_KEY or
// OPENROUTER_API_KEY depending on the provider.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(cfg.LLM.Provider)
	}
	return &cfg, nil
}

func providerKey(provider string) string {
	switch provider {
	case efficacylens.ProviderOpenRouter:
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return os.Getenv("ANTHROPIC_API_KEY")
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case efficacylens.ProviderAnthropic, efficacylens.ProviderOpenRouter:
	default:
		return fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return errors.New("llm.max_tokens must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm.timeout must be positive")
	}
	if c.LLM.MaxRetries < 0 {
		return errors.New("llm.max_retries must not be negative")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if c.Render.Timeout <= 0 {
		return errors.New("render.timeout must be positive")
	}
	return nil
}

// CallerOptions maps the LLM section onto the transport options.
func (c *Config) CallerOptions() efficacylens.CallerOptions {
	return efficacylens.CallerOptions{
		APIKey:     c.LLM.APIKey,
		MaxTokens:  c.LLM.MaxTokens,
		Timeout:    c.LLM.Timeout,
		MaxRetries: c.LLM.MaxRetries,
	}
}

// SynonymTable returns the configured table, or the embedded default.
func (c *Config) SynonymTable() (*efficacylens.SynonymTable, error) {
	if c.Synonyms.Path == "" {
		return efficacylens.DefaultSynonymTable(), nil
	}
	return efficacylens.LoadSynonymFile(c.Synonyms.Path)
}
