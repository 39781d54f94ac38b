package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/appointments")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 0.12, cfg.PlatformFeeRate)
	assert.Equal(t, 48*time.Hour, cfg.CancellationCutoff())
	assert.Equal(t, 60*time.Minute, cfg.NoShowGrace())
	assert.Equal(t, 15*time.Minute, cfg.VideoJoinLead())
	assert.Equal(t, 5, cfg.MaxPinAttempts)
	assert.Equal(t, 0.5, cfg.NoShowFamilyChargeRatio)
	assert.Equal(t, time.Minute, cfg.SettlementRetryInterval)
	assert.Equal(t, "Europe/Paris", cfg.Location().String())

	schedule, err := cfg.FeeSchedule()
	require.NoError(t, err)
	assert.Equal(t, int64(1200), schedule.PlatformFeeBps)
	assert.Equal(t, int64(5000), schedule.NoShowFamilyCharge)

	pc := cfg.PolicyConfig()
	assert.Equal(t, 48*time.Hour, pc.CancellationCutoff)
	assert.Equal(t, "Europe/Paris", pc.Location.String())
}

func TestParseRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PLATFORM_FEE_RATE":           "1.5",
		"NO_SHOW_FAMILY_CHARGE_RATIO": "-0.1",
		"MAX_PIN_ATTEMPTS":            "0",
		"APPOINTMENT_TIMEZONE":        "Mars/Olympus",
		"SETTLEMENT_RETRY_INTERVAL":   "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DB_DSN", "postgres://localhost/appointments")
			t.Setenv(key, value)

			_, err := Parse()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
