package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

const envPrefix = "STOREMATE_"

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "STOREMATE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "STOREMATE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.base_url", typ: kString, env: "STOREMATE_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.model", typ: kString, env: "STOREMATE_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "llm.max_retries", typ: kInt, env: "STOREMATE_LLM_MAX_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxRetries },
	},
	{
		key: "llm.min_response_chars", typ: kInt, env: "STOREMATE_LLM_MIN_RESPONSE_CHARS",
		apply:   func(cfg *Config, v any) { cfg.LLM.MinResponseChars = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MinResponseChars },
	},
	{
		key: "llm.backoff_unit", typ: kDuration, env: "STOREMATE_LLM_BACKOFF_UNIT",
		apply:   func(cfg *Config, v any) { cfg.LLM.BackoffUnit = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.BackoffUnit },
	},
	{
		key: "llm.timeout", typ: kDuration, env: "STOREMATE_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.rate_limit", typ: kFloat, env: "STOREMATE_LLM_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.LLM.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.RateLimit },
	},
	{
		key: "ollama.base_url", typ: kString, env: "STOREMATE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "STOREMATE_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "faq.threshold", typ: kFloat, env: "STOREMATE_FAQ_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.FAQ.Threshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.FAQ.Threshold },
	},
	{
		key: "faq.top_k", typ: kInt, env: "STOREMATE_FAQ_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.FAQ.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.FAQ.TopK },
	},
	{
		key: "faq.refine", typ: kBool, env: "STOREMATE_FAQ_REFINE",
		apply:   func(cfg *Config, v any) { cfg.FAQ.Refine = v.(bool) },
		extract: func(cfg Config) any { return cfg.FAQ.Refine },
	},
	{
		key: "faq.bank_path", typ: kString, env: "STOREMATE_FAQ_BANK_PATH",
		apply:   func(cfg *Config, v any) { cfg.FAQ.BankPath = v.(string) },
		extract: func(cfg Config) any { return cfg.FAQ.BankPath },
	},
	{
		key: "cache.ttl", typ: kDuration, env: "STOREMATE_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "cache.capacity", typ: kInt, env: "STOREMATE_CACHE_CAPACITY",
		apply:   func(cfg *Config, v any) { cfg.Cache.Capacity = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.Capacity },
	},
	{
		key: "conversation.context_turns", typ: kInt, env: "STOREMATE_CONVERSATION_CONTEXT_TURNS",
		apply:   func(cfg *Config, v any) { cfg.Conversation.ContextTurns = v.(int) },
		extract: func(cfg Config) any { return cfg.Conversation.ContextTurns },
	},
	{
		key: "storage.data_dir", typ: kString, env: "STOREMATE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "telegram.enabled", typ: kBool, env: "STOREMATE_TELEGRAM_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Telegram.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telegram.Enabled },
	},
	{
		key: "deepseek_api_key", typ: kString, env: "STOREMATE_DEEPSEEK_API_KEY",
		aliases: []string{"DEEPSEEK_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "telegram_token", typ: kString, env: "STOREMATE_TELEGRAM_TOKEN",
		aliases: []string{"TELEGRAM_BOT_TOKEN"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Telegram.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Telegram.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok, err := b.Lookup(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := lookupEnv(s)
		if raw == "" {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// lookupEnv returns the first non-empty variable among the key's env name and aliases.
func lookupEnv(s keySpec) (string, string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			return name, v
		}
	}
	return "", ""
}

func parseValue(typ keyType, raw string) (any, error) {
	switch typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}
