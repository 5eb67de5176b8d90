package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.OTPWindow)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
}

func TestLoad_OTPWindowMillis(t *testing.T) {
	t.Setenv("OTP_WINDOW_MS", "60000")

	cfg := Load()
	assert.Equal(t, 60*time.Second, cfg.OTPWindow)
}

func TestLoad_OTPWindowMillisInvalid(t *testing.T) {
	t.Setenv("OTP_WINDOW_MS", "not-a-number")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.OTPWindow)
}

func TestLoad_RefreshTTL(t *testing.T) {
	t.Setenv("REFRESH_TTL", "48h")

	cfg := Load()
	assert.Equal(t, 48*time.Hour, cfg.RefreshTTL)
}
