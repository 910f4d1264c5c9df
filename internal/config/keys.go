package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "ingestion.initial_lookback_hours", typ: kInt, env: "PINGBASE_INGESTION_INITIAL_LOOKBACK_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Ingestion.InitialLookbackHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingestion.InitialLookbackHours },
	},
	{
		key: "ingestion.llm_concurrency", typ: kInt, env: "PINGBASE_INGESTION_LLM_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Ingestion.LLMConcurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingestion.LLMConcurrency },
	},
	{
		key: "ingestion.min_score_to_store", typ: kInt, env: "PINGBASE_INGESTION_MIN_SCORE_TO_STORE",
		apply:   func(cfg *Config, v any) { cfg.Ingestion.MinScoreToStore = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingestion.MinScoreToStore },
	},
	{
		key: "ingestion.min_score_for_validation", typ: kInt, env: "PINGBASE_INGESTION_MIN_SCORE_FOR_VALIDATION",
		apply:   func(cfg *Config, v any) { cfg.Ingestion.MinScoreForValidation = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingestion.MinScoreForValidation },
	},
	{
		key: "ingestion.validator_reject_max_score", typ: kInt, env: "PINGBASE_INGESTION_VALIDATOR_REJECT_MAX_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Ingestion.ValidatorRejectMaxScore = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingestion.ValidatorRejectMaxScore },
	},
	{
		key: "reddit.base_url", typ: kString, env: "PINGBASE_REDDIT_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Reddit.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.BaseURL },
	},
	{
		key: "reddit.user_agent", typ: kString, env: "PINGBASE_REDDIT_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Reddit.UserAgent },
	},
	{
		key: "reddit.per_subreddit_limit", typ: kInt, env: "PINGBASE_REDDIT_PER_SUBREDDIT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.PerSubredditLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.PerSubredditLimit },
	},
	{
		key: "reddit.default_request_limit", typ: kInt, env: "PINGBASE_REDDIT_DEFAULT_REQUEST_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Reddit.DefaultRequestLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.DefaultRequestLimit },
	},
	{
		key: "reddit.request_throttle_ms", typ: kInt, env: "PINGBASE_REDDIT_REQUEST_THROTTLE_MS",
		apply:   func(cfg *Config, v any) { cfg.Reddit.RequestThrottleMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.RequestThrottleMs },
	},
	{
		key: "reddit.content_excerpt_max", typ: kInt, env: "PINGBASE_REDDIT_CONTENT_EXCERPT_MAX",
		apply:   func(cfg *Config, v any) { cfg.Reddit.ContentExcerptMax = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.ContentExcerptMax },
	},
	{
		key: "reddit.request_timeout_sec", typ: kInt, env: "PINGBASE_REDDIT_REQUEST_TIMEOUT_SEC",
		apply:   func(cfg *Config, v any) { cfg.Reddit.RequestTimeoutSec = v.(int) },
		extract: func(cfg Config) any { return cfg.Reddit.RequestTimeoutSec },
	},
	{
		key: "llm.provider", typ: kString, env: "PINGBASE_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "PINGBASE_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "PINGBASE_LLM_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.scorer_model", typ: kString, env: "PINGBASE_LLM_SCORER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ScorerModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ScorerModel },
	},
	{
		key: "llm.validator_model", typ: kString, env: "PINGBASE_LLM_VALIDATOR_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.ValidatorModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ValidatorModel },
	},
	{
		key: "llm.timeout_sec", typ: kInt, env: "PINGBASE_LLM_TIMEOUT_SEC",
		apply:   func(cfg *Config, v any) { cfg.LLM.TimeoutSec = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.TimeoutSec },
	},
	{
		key: "signals.min_score_to_show", typ: kInt, env: "PINGBASE_SIGNALS_MIN_SCORE_TO_SHOW",
		apply:   func(cfg *Config, v any) { cfg.Signals.MinScoreToShow = v.(int) },
		extract: func(cfg Config) any { return cfg.Signals.MinScoreToShow },
	},
	{
		key: "signals.validator_min_confidence_to_show", typ: kInt, env: "PINGBASE_SIGNALS_VALIDATOR_MIN_CONFIDENCE_TO_SHOW",
		apply:   func(cfg *Config, v any) { cfg.Signals.ValidatorMinConfidenceToShow = v.(int) },
		extract: func(cfg Config) any { return cfg.Signals.ValidatorMinConfidenceToShow },
	},
	{
		key: "signals.page_size", typ: kInt, env: "PINGBASE_SIGNALS_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Signals.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Signals.PageSize },
	},
	{
		key: "retention.signal_retention_days", typ: kInt, env: "PINGBASE_RETENTION_SIGNAL_RETENTION_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Retention.SignalRetentionDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Retention.SignalRetentionDays },
	},
	{
		key: "storage.driver", typ: kString, env: "PINGBASE_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PINGBASE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.dsn", typ: kString, env: "PINGBASE_STORAGE_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "server.port", typ: kInt, env: "PINGBASE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cron_secret", typ: kString, env: "PINGBASE_CRON_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.CronSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CronSecret },
	},
	{
		key: "schedule.ingestion", typ: kString, env: "PINGBASE_SCHEDULE_INGESTION",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Ingestion = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Ingestion },
	},
	{
		key: "schedule.retention", typ: kString, env: "PINGBASE_SCHEDULE_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Schedule.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Schedule.Retention },
	},
	{
		key: "redis.addr", typ: kString, env: "PINGBASE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Redis.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Addr },
	},
	{
		key: "redis.password", typ: kString, env: "PINGBASE_REDIS_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Redis.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.Password },
	},
	{
		key: "redis.db", typ: kInt, env: "PINGBASE_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Redis.DB = v.(int) },
		extract: func(cfg Config) any { return cfg.Redis.DB },
	},
	{
		key: "log.level", typ: kString, env: "PINGBASE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
