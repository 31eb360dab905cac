package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server       ServerConfig
	Log          LogConfig
	LLM          LLMConfig
	Ollama       OllamaConfig
	FAQ          FAQConfig
	Cache        CacheConfig
	Conversation ConversationConfig
	Storage      StorageConfig
	Telegram     TelegramConfig
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

// LLMConfig controls the hosted chat-completion model.
type LLMConfig struct {
	BaseURL          string
	Model            string
	APIKey           string
	MaxRetries       int
	MinResponseChars int
	BackoffUnit      time.Duration
	Timeout          time.Duration
	RateLimit        float64
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
}

// FAQConfig controls the similarity index over the FAQ bank.
type FAQConfig struct {
	Threshold float64
	TopK      int
	Refine    bool
	BankPath  string
}

type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

type ConversationConfig struct {
	ContextTurns int
}

type StorageConfig struct {
	DataDir string
}

type TelegramConfig struct {
	Enabled bool
	Token   string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			BaseURL:          "https://api.deepseek.com/v1",
			Model:            "deepseek-chat",
			MaxRetries:       3,
			MinResponseChars: 100,
			BackoffUnit:      time.Second,
			Timeout:          30 * time.Second,
			RateLimit:        5,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
		},
		FAQ: FAQConfig{
			Threshold: 0.7,
			TopK:      3,
			Refine:    true,
		},
		Cache: CacheConfig{
			TTL:      time.Hour,
			Capacity: 1000,
		},
		Conversation: ConversationConfig{
			ContextTurns: 5,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.storemate.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a YAML file at $XDG_CONFIG_HOME/storemate/config.yaml
// and secrets fall back to a 0600 secrets.yaml under $XDG_DATA_HOME/storemate.
//
// Environment variables (STOREMATE_*) override backend values on all platforms.
// Missing secrets are not an error here; see Validate.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// Keychain abstracts secret storage for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b Backend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	return cfg, nil
}

// Validate reports configuration that prevents the server from starting.
func (c Config) Validate() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, "DeepSeek API key (STOREMATE_DEEPSEEK_API_KEY"+apiKeyHint("deepseek_api_key")+")")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		missing = append(missing, "Telegram bot token (STOREMATE_TELEGRAM_TOKEN"+apiKeyHint("telegram_token")+")")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, "; "))
	}
	if c.FAQ.TopK <= 0 {
		return fmt.Errorf("faq.top_k must be positive, got %d", c.FAQ.TopK)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	return nil
}
