package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampReplyTimeout(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want time.Duration
	}{
		{"below window", 5 * time.Second, 30 * time.Second},
		{"inside window", 45 * time.Second, 45 * time.Second},
		{"above window", 2 * time.Minute, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampReplyTimeout(tt.in))
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("AI_REPLY_TIMEOUT", "40s")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 40*time.Second, cfg.Ai.ReplyTimeout)
	assert.True(t, cfg.Otel.Enabled)
}
