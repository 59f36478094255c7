package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_POLL_INTERVAL", "")
	t.Setenv("PAYMENT_POLL_MAX_ATTEMPTS", "")
	t.Setenv("STORE_DRIVER", "memory")

	cfg := Load()

	assert.Equal(t, "memory", cfg.App.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.Payment.PollInterval)
	assert.Equal(t, 6, cfg.Payment.MaxAttempts)
	assert.Equal(t, 72*time.Hour, cfg.Subscription.WarningWindow)
	assert.Equal(t, "subscription.events", cfg.App.EventTopic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_POLL_INTERVAL", "2s")
	t.Setenv("PAYMENT_POLL_MAX_ATTEMPTS", "10")
	t.Setenv("PAYMENT_SYNC_TIMEOUT", "30")
	t.Setenv("MIDTRANS_IS_PRODUCTION", "true")
	t.Setenv("GO_ENV", "Production")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.Payment.PollInterval)
	assert.Equal(t, 10, cfg.Payment.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Payment.SyncTimeout)
	assert.True(t, cfg.Midtrans.IsProduction)
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvAsDuration_InvalidFallsBack(t *testing.T) {
	for _, raw := range []string{"soon", "-5s", "0"} {
		t.Setenv("SOME_DURATION", raw)
		assert.Equal(t, time.Minute, getEnvAsDuration("SOME_DURATION", time.Minute), raw)
	}
}
