// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/vendora/paycore/internal/money"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payout rail (Stripe Connect). If StripeSecretKey is empty the
	// server runs with a fake rail for local development.
	StripeSecretKey     string
	StripeWebhookSecret string
	OnboardingReturnURL string
	OnboardingRefreshURL string

	// Policy
	DefaultCurrency    string
	MinWithdrawal      string // policy floor for payout requests
	RecentTransactions int    // N for GET wallet recent transactions

	// Observability
	OTLPEndpoint string

	// Security
	AdminSecret string // required for approve/reject endpoints
}

const (
	DefaultPort               = "8080"
	DefaultEnv                = "development"
	DefaultLogLevel           = "info"
	DefaultCurrency           = "USD"
	DefaultMinWithdrawal      = "10.00"
	DefaultRecentTransactions = 10
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		OnboardingReturnURL:  getEnv("ONBOARDING_RETURN_URL", "https://dashboard.example.com/payouts/return"),
		OnboardingRefreshURL: getEnv("ONBOARDING_REFRESH_URL", "https://dashboard.example.com/payouts/refresh"),
		DefaultCurrency:      getEnv("DEFAULT_CURRENCY", DefaultCurrency),
		MinWithdrawal:        getEnv("MIN_WITHDRAWAL", DefaultMinWithdrawal),
		RecentTransactions:   getEnvInt("RECENT_TRANSACTIONS_LIMIT", DefaultRecentTransactions),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and well formed.
func (c *Config) Validate() error {
	if !money.IsPositive(c.MinWithdrawal) {
		return fmt.Errorf("MIN_WITHDRAWAL must be a positive decimal amount, got %q", c.MinWithdrawal)
	}

	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a three-letter code, got %q", c.DefaultCurrency)
	}

	if c.RecentTransactions <= 0 {
		return fmt.Errorf("RECENT_TRANSACTIONS_LIMIT must be positive, got %d", c.RecentTransactions)
	}

	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" && c.IsProduction() {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set in production")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
