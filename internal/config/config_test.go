package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sla-engine", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 300*time.Second, cfg.Engine.TickInterval())
	assert.Equal(t, 30*time.Minute, cfg.Engine.AtRiskThreshold())
	assert.Equal(t, 10*time.Second, cfg.Engine.ShutdownJoin())
	assert.Equal(t, TopTierAuditOnly, cfg.Engine.TopTierBreachPolicy)
	assert.Equal(t, "sla-engine:sweep-lock", cfg.Engine.SweepLockKey)
	assert.Equal(t, 30*time.Second, cfg.Webhook.Timeout())
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENGINE_TICK_INTERVAL_SECONDS", "60")
	t.Setenv("ENGINE_TOP_TIER_BREACH_POLICY", "extend_sla")
	t.Setenv("AUTH_ADMIN_OPERATOR_ID", "9")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Engine.TickInterval())
	assert.Equal(t, TopTierExtendSLA, cfg.Engine.TopTierBreachPolicy)
	assert.Equal(t, int64(9), cfg.Auth.AdminOperatorID)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("ENGINE_TOP_TIER_BREACH_POLICY", "page_everyone")

	_, err := Load()
	assert.Error(t, err)
}

func TestDurationHelpersGuardNonPositive(t *testing.T) {
	e := EngineConfig{}
	assert.Equal(t, 300*time.Second, e.TickInterval())
	assert.Equal(t, 30*time.Minute, e.AtRiskThreshold())

	w := WebhookConfig{}
	assert.Equal(t, 30*time.Second, w.Timeout())
}
