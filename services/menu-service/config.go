package main

import (
	"context"
	"fmt"
	"os"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	Env           string
	Port          string
	Timezone      string
	LedgerBackend string
	DDBTable      string
	Postgres      database.PostgresConfig
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getEnv("APP_ENV", "development"),
		Port:          getEnv("PORT", "8084"),
		Timezone:      getEnv("APP_TIMEZONE", "Asia/Kolkata"),
		LedgerBackend: getEnv("LEDGER_BACKEND", BackendPostgres),
		DDBTable:      getEnv("DDB_TABLE_MENU_LEDGER", "MenuLedger"),
		Postgres: database.PostgresConfig{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_HOST"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
		},
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := awspkg.LoadAWSConfig(context.Background()); err == nil {
			var creds map[string]string
			sm := awspkg.NewSecretsClient(awsCfg)
			if err := sm.GetJSONSecret(context.Background(), "menu/DB_CREDENTIALS", &creds); err == nil {
				overrideString(&cfg.Postgres.User, creds["POSTGRES_USER"])
				overrideString(&cfg.Postgres.Password, creds["POSTGRES_PASSWORD"])
				overrideString(&cfg.Postgres.DBName, creds["POSTGRES_DB"])
				overrideString(&cfg.Postgres.Host, creds["POSTGRES_HOST"])
				overrideString(&cfg.Postgres.Port, creds["POSTGRES_PORT"])
			}
		}
	}

	// publications stay in postgres for either ledger backend
	if cfg.Postgres.User == "" || cfg.Postgres.Password == "" || cfg.Postgres.DBName == "" || cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	switch cfg.LedgerBackend {
	case BackendPostgres, BackendDynamoDB:
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", BackendPostgres, BackendDynamoDB, cfg.LedgerBackend)
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
