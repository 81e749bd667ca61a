package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DBUrl            string
	JWTSecret        string
	AppEnv           string
	AppBaseURL       string
	GatewayBaseURL   string
	GatewaySecretKey string
	SweepInterval    time.Duration
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	jwtSecret, exists := os.LookupEnv("JWT_SECRET")
	if !exists || jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		DBUrl:            getEnv("DB_URL", ""),
		JWTSecret:        jwtSecret,
		AppEnv:           normalizeEnv(getEnv("APP_ENV", "production")),
		AppBaseURL:       getEnv("APP_BASE_URL", "http://localhost:3000"),
		GatewayBaseURL:   getEnv("PAYMENT_GATEWAY_URL", "https://api.stripe.com"),
		GatewaySecretKey: getEnv("PAYMENT_GATEWAY_SECRET", ""),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Hour),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}
