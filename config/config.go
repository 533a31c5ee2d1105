package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	LogMode          string
	DatabasePath     string
	LLMProvider      string // anthropic, openai, ollama
	AnthropicKey     string
	OpenAIKey        string
	LLMModel         string
	OllamaBaseURL    string
	DiscordToken     string
	DiscordWebhook   string
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	Neo4jDatabase    string
	RedisAddr        string
	DefaultTimezone  string
	SchedulerSeconds int // tick period, floor 30
	FreeReroll       bool
	ForceSerendipity bool
	DisableSerendip  bool
	Testing          bool
}

func Load() *Config {
	_ = godotenv.Load() // ignore error if no .env

	return &Config{
		LogMode:          envOr("LOG_MODE", "dev"),
		DatabasePath:     envOr("DATABASE_PATH", "./questd.db"),
		LLMProvider:      envOr("LLM_PROVIDER", "anthropic"),
		AnthropicKey:     os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		LLMModel:         os.Getenv("LLM_MODEL"),
		OllamaBaseURL:    envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		DiscordToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordWebhook:   os.Getenv("DISCORD_WEBHOOK_URL"),
		Neo4jURI:         os.Getenv("NEO4J_URI"),
		Neo4jUser:        envOr("NEO4J_USER", "neo4j"),
		Neo4jPassword:    os.Getenv("NEO4J_PASSWORD"),
		Neo4jDatabase:    os.Getenv("NEO4J_DATABASE"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		DefaultTimezone:  envOr("DEFAULT_TIMEZONE", "Asia/Taipei"),
		SchedulerSeconds: envIntFloor("SCHEDULER_INTERVAL_SECONDS", 30, 30),
		FreeReroll:       truthy(os.Getenv("FREE_REROLL")),
		ForceSerendipity: truthy(os.Getenv("FORCE_SERENDIPITY")),
		DisableSerendip:  truthy(os.Getenv("DISABLE_SERENDIPITY")),
		Testing:          truthy(os.Getenv("TESTING")),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntFloor reads an integer env var, applying a default and a lower bound.
func envIntFloor(key string, fallback, floor int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		return floor
	}
	return n
}

func truthy(v string) bool {
	switch v {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
