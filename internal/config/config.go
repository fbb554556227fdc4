// Package config layers defaults, an optional sctran.yaml, SCTRAN_* env vars
// and bound CLI flags into one Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valpere/sctran/internal/llm"
)

const EnvPrefix = "SCTRAN"

type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	DB       DBConfig       `mapstructure:"db"`
	Server   ServerConfig   `mapstructure:"server"`
	Demo     DemoConfig     `mapstructure:"demo"`
	Google   GoogleConfig   `mapstructure:"google"`
	Dataset  DatasetConfig  `mapstructure:"dataset"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheSize   int           `mapstructure:"cache_size"`
}

type PipelineConfig struct {
	MaxIterations    int  `mapstructure:"max_iterations"`
	Reinforcement    bool `mapstructure:"reinforcement"`
	CheckCompilation bool `mapstructure:"check_compilation"`
	Pretranslate     bool `mapstructure:"pretranslate"`
	ReuseResults     bool `mapstructure:"reuse_results"`
}

type AgentsConfig struct {
	File string `mapstructure:"file"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	CORSOrigins      []string      `mapstructure:"cors_origins"`
	TranslateTimeout time.Duration `mapstructure:"translate_timeout"`
}

type DemoConfig struct {
	Dir  string `mapstructure:"dir"`
	Addr string `mapstructure:"addr"`
}

type GoogleConfig struct {
	Credentials string `mapstructure:"credentials"`
	Project     string `mapstructure:"project"`
}

type DatasetConfig struct {
	Path string `mapstructure:"path"`
}

// SetDefaults registers every known key so env overrides apply on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.cache_size", 256)

	v.SetDefault("pipeline.max_iterations", 2)
	v.SetDefault("pipeline.reinforcement", true)
	v.SetDefault("pipeline.check_compilation", true)
	v.SetDefault("pipeline.pretranslate", false)
	v.SetDefault("pipeline.reuse_results", false)

	v.SetDefault("agents.file", "")
	v.SetDefault("db.path", "./data/sctran.db")
	v.SetDefault("server.addr", "localhost:5000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:8000", "http://127.0.0.1:8000"})
	v.SetDefault("server.translate_timeout", 10*time.Minute)
	v.SetDefault("demo.dir", "./demo")
	v.SetDefault("demo.addr", "localhost:8000")
	v.SetDefault("google.credentials", "")
	v.SetDefault("google.project", "")
	v.SetDefault("dataset.path", "./data/requirement_fsm_code.jsonl")
}

// New returns a viper instance with defaults and env binding configured.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, then configFile (or sctran.yaml from the working directory
// or $HOME/.config/sctran when configFile is empty), and decodes v.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	_ = godotenv.Load()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("sctran")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sctran"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(llm.Providers, c.LLM.Provider) {
		return fmt.Errorf("config: unknown llm.provider %q (want one of %s)", c.LLM.Provider, strings.Join(llm.Providers, ", "))
	}
	if c.LLM.Model == "" {
		return errors.New("config: llm.model is required")
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("config: llm.max_attempts must be at least 1, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature must be within [0, 2], got %v", c.LLM.Temperature)
	}
	if c.Server.TranslateTimeout < 0 {
		return fmt.Errorf("config: server.translate_timeout must not be negative, got %v", c.Server.TranslateTimeout)
	}
	if c.Pipeline.MaxIterations < 0 {
		return fmt.Errorf("config: pipeline.max_iterations must not be negative, got %d", c.Pipeline.MaxIterations)
	}
	return nil
}

// LLMOptions maps the llm section onto backend options.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
		APIKey:   c.LLM.APIKey,
		Timeout:  c.LLM.Timeout,
	}
}
