package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is built once at startup and passed to components explicitly.
type AppConfig struct {
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     string

	OpenWeatherAPIKey string

	Port          string
	AllowedOrigin string

	// HTTPTimeout bounds outbound calls to the weather provider.
	HTTPTimeout time.Duration

	// RecordMaxAge enables the retention sweeper when > 0.
	RecordMaxAge  time.Duration
	SweepInterval time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.PostgresUser = getenvDefault("POSTGRES_USER", "postgres")
	cfg.PostgresPassword = getenvDefault("POSTGRES_PASSWORD", "postgres")
	cfg.PostgresDB = getenvDefault("POSTGRES_DB", "weather_db")
	cfg.PostgresHost = getenvDefault("POSTGRES_HOST", "localhost")
	cfg.PostgresPort = getenvDefault("POSTGRES_PORT", "5432")

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")

	cfg.Port = getenvDefault("PORT", "8000")
	cfg.AllowedOrigin = getenvDefault("ALLOWED_ORIGIN", "http://localhost:3000")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	// Retention sweeping is off unless RECORD_MAX_AGE is set.
	maxAgeStr := getenvDefault("RECORD_MAX_AGE", "0")
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RECORD_MAX_AGE: %w", err)
	}
	cfg.RecordMaxAge = maxAge

	sweepStr := getenvDefault("SWEEP_INTERVAL", "1h")
	sweep, err := time.ParseDuration(sweepStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepInterval = sweep

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
