package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Bot identity shown on the paired device
	BotName string

	// Shared secret for the send/attendance endpoints
	APIKey string

	// Database
	DatabaseURL string
	// Credential store for the WhatsApp session. Defaults to DatabaseURL.
	WAStoreURL string

	// Redis
	RedisURL string

	// Dispatch
	QueueBackend    string // redis or memory
	DispatchWorkers int

	// Attendance dates are recorded in this timezone
	Timezone string

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "3000"),
		Env:             getEnvOrDefault("ENV", "development"),
		BotName:         getEnvOrDefault("BOT_NAME", "BotKu"),
		APIKey:          mustGetEnv("API_KEY"),
		DatabaseURL:     mustGetEnv("DATABASE_URL"),
		RedisURL:        mustGetEnv("REDIS_URL"),
		QueueBackend:    getEnvOrDefault("QUEUE_BACKEND", "redis"),
		DispatchWorkers: getEnvAsIntOrDefault("DISPATCH_WORKERS", 3),
		Timezone:        getEnvOrDefault("TIMEZONE", "Asia/Jakarta"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       getEnvOrDefault("LOG_FORMAT", "json"),
		LogOutput:       getEnvOrDefault("LOG_OUTPUT", "stdout"),
	}
	cfg.WAStoreURL = getEnvOrDefault("WA_STORE_URL", cfg.DatabaseURL)

	return cfg
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
