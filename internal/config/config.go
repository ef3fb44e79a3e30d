package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                 string
	AllowedOrigins       []string
	DatabaseURL          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StockCacheTTLSeconds int
	ExpiryAlertDays      int
}

func Load() Config {
	// A local .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("STOCK_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	alertDays, err := strconv.Atoi(getEnv("EXPIRY_ALERT_DAYS", "30"))
	if err != nil || alertDays < 1 {
		alertDays = 30
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigins:       splitOrigins(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              redisDB,
		StockCacheTTLSeconds: ttl,
		ExpiryAlertDays:      alertDays,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
