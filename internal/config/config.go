package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings shared by the API server and the CLI.
type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string

	GCSBucket          string
	GCSCredentialsFile string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RedisAddr     string
	RedisPassword string
	TreeCacheTTL  time.Duration

	SignedURLTTL time.Duration

	QueueBuffer     int
	QueueWorkers    int
	QueueMaxRetries int

	WebhookSecret string

	AllowedOrigins []string
	MaxUploadMB    int
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional outside local development
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		JWTAudience:        getEnvOrDefault("JWT_AUDIENCE", "authenticated"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		AllowedOrigins:     getList("CORS_ALLOWED_ORIGINS"),
	}

	var err error
	if cfg.TreeCacheTTL, err = getDuration("TREE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SignedURLTTL, err = getDuration("SIGNED_URL_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.QueueBuffer, err = getInt("QUEUE_BUFFER", 100); err != nil {
		return nil, err
	}
	if cfg.QueueWorkers, err = getInt("QUEUE_WORKERS", 5); err != nil {
		return nil, err
	}
	if cfg.QueueMaxRetries, err = getInt("QUEUE_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.MaxUploadMB, err = getInt("MAX_UPLOAD_MB", 100); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every required setting that is missing for the API server.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive, got %d", key, v)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a duration: %w", key, err)
	}
	return d, nil
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
