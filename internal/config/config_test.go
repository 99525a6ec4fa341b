package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:               "8080",
		Env:                "development",
		LogLevel:           "info",
		DefaultCurrency:    "USD",
		MinWithdrawal:      "10.00",
		RecentTransactions: 10,
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STRIPE_SECRET_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMinWithdrawal, cfg.MinWithdrawal)
	assert.Equal(t, DefaultCurrency, cfg.DefaultCurrency)
	assert.Equal(t, DefaultRecentTransactions, cfg.RecentTransactions)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MIN_WITHDRAWAL", "25.00")
	t.Setenv("DEFAULT_CURRENCY", "MYR")
	t.Setenv("RECENT_TRANSACTIONS_LIMIT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "25.00", cfg.MinWithdrawal)
	assert.Equal(t, "MYR", cfg.DefaultCurrency)
	assert.Equal(t, 5, cfg.RecentTransactions)
}

func TestValidate_RejectsBadMinWithdrawal(t *testing.T) {
	cfg := validConfig()
	cfg.MinWithdrawal = "-1"
	assert.Error(t, cfg.Validate())

	cfg.MinWithdrawal = "0"
	assert.Error(t, cfg.Validate())

	cfg.MinWithdrawal = "nonsense"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadCurrency(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultCurrency = "US"
	assert.Error(t, cfg.Validate())
}

func TestValidate_WebhookSecretRequiredInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.StripeSecretKey = "sk_live_x"
	cfg.StripeWebhookSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.StripeWebhookSecret = "whsec_x"
	assert.NoError(t, cfg.Validate())
}
