package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env            string
	Port           string
	JWTSecret      string
	OrderService   string
	MenuService    string
	AllowedOrigins string
}

func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
		OrderService:   getEnv("ORDER_SERVICE_URL", "http://order-service:8083"),
		MenuService:    getEnv("MENU_SERVICE_URL", "http://menu-service:8084"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
