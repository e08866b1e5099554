package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	OpenAI    OpenAIConfig
	Chunker   ChunkerConfig
	Retrieval RetrievalConfig
	RateLimit RateLimitConfig

	DefaultTenantID int64
}

// OpenAIConfig configures the embedding and chat completion clients.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

// Configured reports whether provider credentials are present.
func (c OpenAIConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type ChunkerConfig struct {
	MaxChunkSize int
	ChunkOverlap int
}

type RetrievalConfig struct {
	TopK int
}

type RateLimitConfig struct {
	Enabled bool
	Rate    float64
	Burst   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "lorekeep"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "lorekeep"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		OpenAI: OpenAIConfig{
			APIKey:         strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			BaseURL:        getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			EmbeddingModel: getenv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			ChatModel:      getenv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			Temperature:    getenvFloat("OPENAI_TEMPERATURE", 0.3),
			MaxTokens:      getenvInt("OPENAI_MAX_TOKENS", 1024),
			Timeout:        time.Duration(getenvInt("OPENAI_TIMEOUT_SECONDS", 60)) * time.Second,
		},

		Chunker: ChunkerConfig{
			MaxChunkSize: getenvInt("CHUNK_MAX_SIZE", 1000),
			ChunkOverlap: getenvInt("CHUNK_OVERLAP", 200),
		},

		Retrieval: RetrievalConfig{
			TopK: getenvInt("RETRIEVAL_TOP_K", 5),
		},

		RateLimit: RateLimitConfig{
			Enabled: getenvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getenvFloat("RATE_LIMIT_RATE", 5),
			Burst:   getenvInt("RATE_LIMIT_BURST", 10),
		},

		DefaultTenantID: getenvInt64("DEFAULT_TENANT", 0),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
