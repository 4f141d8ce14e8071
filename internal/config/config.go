// Package config provides configuration for the relay service.
package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds the relay configuration, loaded from environment variables.
type Config struct {
	// Server settings
	Port int `env:"PORT" envDefault:"5000"`

	// History store settings. When RedisURL is empty the relay falls back to
	// the SQLite store at SQLitePath.
	RedisURL   string        `env:"REDIS_URL"`
	SQLitePath string        `env:"SQLITE_PATH" envDefault:"newsrag.db"`
	HistoryTTL time.Duration `env:"HISTORY_TTL" envDefault:"1h"`

	// Retrieval settings. When QdrantURL is empty the relay uses the embedded
	// chromem index at VectorDir.
	JinaAPIKey       string `env:"JINA_API_KEY"`
	JinaURL          string `env:"JINA_URL" envDefault:"https://api.jina.ai/v1/embeddings"`
	JinaModel        string `env:"JINA_MODEL" envDefault:"jina-embeddings-v2-base-en"`
	QdrantURL        string `env:"QDRANT_URL"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"news"`
	VectorDir        string `env:"VECTOR_DIR" envDefault:"data/vectors"`
	TopK             int    `env:"TOP_K" envDefault:"5"`

	// Generation settings
	Provider     string `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIURL    string `env:"OPENAI_BASE_URL"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`

	// Gateway call budget; expiry is treated as a gateway failure.
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"60s"`

	// WebSocket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	QueryQueueSize int           `env:"WS_QUERY_QUEUE_SIZE" envDefault:"8"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE" envDefault:"log/newsrag.log"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
