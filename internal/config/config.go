package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Ingestion IngestionConfig
	Reddit    RedditConfig
	LLM       LLMConfig
	Signals   SignalsConfig
	Retention RetentionConfig
	Storage   StorageConfig
	Server    ServerConfig
	Schedule  ScheduleConfig
	Redis     RedisConfig
	Log       LogConfig
}

type IngestionConfig struct {
	InitialLookbackHours    int
	LLMConcurrency          int
	MinScoreToStore         int
	MinScoreForValidation   int
	ValidatorRejectMaxScore int
}

type RedditConfig struct {
	BaseURL             string
	UserAgent           string
	PerSubredditLimit   int
	DefaultRequestLimit int
	RequestThrottleMs   int
	ContentExcerptMax   int
	RequestTimeoutSec   int
}

type LLMConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	ScorerModel    string
	ValidatorModel string
	TimeoutSec     int
}

type SignalsConfig struct {
	MinScoreToShow               int
	ValidatorMinConfidenceToShow int
	PageSize                     int
}

type RetentionConfig struct {
	SignalRetentionDays int
}

type StorageConfig struct {
	Driver  string
	DataDir string
	DSN     string
}

type ServerConfig struct {
	Port       int
	CronSecret string
}

type ScheduleConfig struct {
	Ingestion string
	Retention string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LogConfig struct {
	Level string
}

// ThrottleInterval is the minimum spacing between two content API requests.
func (c RedditConfig) ThrottleInterval() time.Duration {
	return time.Duration(c.RequestThrottleMs) * time.Millisecond
}

func (c RedditConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c IngestionConfig) InitialLookback() time.Duration {
	return time.Duration(c.InitialLookbackHours) * time.Hour
}

func defaults() Config {
	return Config{
		Ingestion: IngestionConfig{
			InitialLookbackHours:    24,
			LLMConcurrency:          10,
			MinScoreToStore:         40,
			MinScoreForValidation:   65,
			ValidatorRejectMaxScore: 49,
		},
		Reddit: RedditConfig{
			BaseURL:             "https://www.reddit.com",
			UserAgent:           "Mozilla/5.0 (compatible; Pingbase/1.0; +https://github.com/pingbase)",
			PerSubredditLimit:   50,
			DefaultRequestLimit: 100,
			RequestThrottleMs:   4000,
			ContentExcerptMax:   800,
			RequestTimeoutSec:   20,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			BaseURL:        "https://api.openai.com/v1",
			ScorerModel:    "gpt-5-mini",
			ValidatorModel: "gpt-5",
			TimeoutSec:     60,
		},
		Signals: SignalsConfig{
			MinScoreToShow:               85,
			ValidatorMinConfidenceToShow: 90,
			PageSize:                     20,
		},
		Retention: RetentionConfig{
			SignalRetentionDays: 30,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Schedule: ScheduleConfig{
			Ingestion: "@every 1h",
			Retention: "@daily",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration without reading any backend.
func Default() Config {
	return defaults()
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/pingbase/config.yaml, then applies PINGBASE_*
// environment overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres", "libsql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver %q requires PINGBASE_STORAGE_DSN", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.LLM.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.Ingestion.LLMConcurrency < 1 {
		return fmt.Errorf("ingestion.llm_concurrency must be at least 1, got %d", c.Ingestion.LLMConcurrency)
	}
	return nil
}

// RequireLLM reports a missing API key for providers that need one.
// Commands that only read the store don't call it.
func (c Config) RequireLLM() error {
	if c.LLM.Provider == "openai" && c.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: LLM API key. Set it via environment variable PINGBASE_LLM_API_KEY")
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "pingbase-data"
		}
	}
	return filepath.Join(dir, "pingbase")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "pingbase", "config.yaml")
}
