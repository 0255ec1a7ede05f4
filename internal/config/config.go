package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Redis (optional, empty keeps sessions and cache in memory)
	RedisURL string

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration

	// Gemini AI
	GeminiAPIKey         string
	GeminiChatModel      string
	GeminiVisionModel    string
	GeminiEmbeddingModel string
	GeminiConcurrentReqs int

	// Cache
	CacheTTL time.Duration

	// Uploads
	MaxUploadBytes int64

	// Telemetry (empty logs to stderr only and disables trace/metric export)
	LogDir string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		SessionSecret:        getEnvOrDefault("SESSION_SECRET", ""),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 12*time.Hour),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiChatModel:      getEnvOrDefault("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		GeminiVisionModel:    getEnvOrDefault("GEMINI_VISION_MODEL", "gemini-2.0-flash"),
		GeminiEmbeddingModel: getEnvOrDefault("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		CacheTTL:             getEnvAsDurationOrDefault("CACHE_TTL", 24*time.Hour),
		MaxUploadBytes:       int64(getEnvAsIntOrDefault("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		LogDir:               getEnvOrDefault("LOG_DIR", ""),
	}

	if cfg.GeminiConcurrentReqs < 1 {
		cfg.GeminiConcurrentReqs = 1
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
