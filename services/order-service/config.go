package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	Timezone string
	Postgres database.PostgresConfig

	MenuServiceURL string
	RedisURL       string
	IdempotencyTTL time.Duration
	// IdempotencyLease bounds an in-progress claim; twice the request timeout.
	IdempotencyLease time.Duration

	KafkaBrokers   []string
	KafkaTopic     string
	SNSTopicArn    string
	PaymentQueue   string
	AllowedOrigins string

	CompensationInterval    time.Duration
	CompensationMaxAttempts int
	CreateRatePerSecond     float64
	CreateBurst             int
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8083"),
		Timezone: getEnv("APP_TIMEZONE", "Asia/Kolkata"),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		},
		MenuServiceURL: getEnv("MENU_SERVICE_URL", "http://menu-service:8084"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		SNSTopicArn:    os.Getenv("ORDER_SNS_TOPIC_ARN"),
		PaymentQueue:   os.Getenv("PAYMENT_EVENTS_QUEUE_URL"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	var err error
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyLease, err = getDuration("IDEMPOTENCY_LEASE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CompensationInterval, err = getDuration("COMPENSATION_RETRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CompensationMaxAttempts, err = getInt("COMPENSATION_MAX_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.CreateBurst, err = getInt("ORDER_CREATE_BURST", 10); err != nil {
		return nil, err
	}
	rps := getEnv("ORDER_CREATE_RPS", "2")
	if cfg.CreateRatePerSecond, err = strconv.ParseFloat(rps, 64); err != nil {
		return nil, fmt.Errorf("ORDER_CREATE_RPS: %w", err)
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			var creds map[string]string
			sm := awspkg.NewSecretsClient(awsCfg)
			if err := sm.GetJSONSecret(context.Background(), "order/DB_CREDENTIALS", &creds); err == nil {
				overrideString(&cfg.Postgres.User, creds["POSTGRES_USER"])
				overrideString(&cfg.Postgres.Password, creds["POSTGRES_PASSWORD"])
				overrideString(&cfg.Postgres.DBName, creds["POSTGRES_DB"])
				overrideString(&cfg.Postgres.Host, creds["POSTGRES_HOST"])
				overrideString(&cfg.Postgres.Port, creds["POSTGRES_PORT"])
			}
		}
	}

	if cfg.Postgres.User == "" || cfg.Postgres.Password == "" || cfg.Postgres.DBName == "" || cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	if cfg.MenuServiceURL == "" {
		return nil, fmt.Errorf("MENU_SERVICE_URL is required")
	}
	return cfg, nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
