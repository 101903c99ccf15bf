package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("OPENAI_API_KEY", "ok")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, 3, cfg.Tryon.MaxIterations)
	assert.InDelta(t, 7.0, cfg.Tryon.AcceptScore, 1e-9)
	assert.InDelta(t, 8.0, cfg.Tryon.PromoteScore, 1e-9)
	assert.Equal(t, 2, cfg.Tryon.GenerateRetries)
	assert.Equal(t, 3*time.Minute, cfg.Tryon.GenerateTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "gemini-3-pro-image-preview", cfg.Gemini.ImageModel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRYON_MAX_ITERATIONS", "5")
	t.Setenv("TRYON_ACCEPT_SCORE", "6.5")
	t.Setenv("SERVER_PORT", "9090")

	cfg := validConfig(t)
	assert.Equal(t, 5, cfg.Tryon.MaxIterations)
	assert.InDelta(t, 6.5, cfg.Tryon.AcceptScore, 1e-9)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TRYON_ACCEPT_SCORE", "high")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateOK(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingKeys(t *testing.T) {
	cfg := validConfig(t)
	cfg.Gemini.APIKey = ""
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidateRequiresSomeChatProvider(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.OpenAIKey = ""
	cfg.LLM.AnthropicKey = ""

	assert.Error(t, cfg.Validate())
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tryon.PromoteScore = cfg.Tryon.AcceptScore - 1

	assert.Error(t, cfg.Validate())
}

func TestValidateIterationFloor(t *testing.T) {
	cfg := validConfig(t)
	cfg.Tryon.MaxIterations = 0

	assert.Error(t, cfg.Validate())
}
