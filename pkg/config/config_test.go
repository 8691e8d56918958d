package config_test

import (
	"testing"
	"time"

	"github.com/remindly/callcore/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
identity:
  id: "@alice:test"
  username: "alice"
  token: "secret-token"
signaling:
  url: "ws://localhost:8085/api/signaling"
call:
  ringingTimeout: 45s
relay:
  address: ":8085"
  jwtSecret: "relay-secret"
log: "debug"
`

func TestLoadConfigFromString(t *testing.T) {
	cfg, err := config.LoadConfigFromString(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "@alice:test", cfg.Identity.UserID())
	assert.Equal(t, "secret-token", cfg.Identity.AccessToken())
	assert.Equal(t, "ws://localhost:8085/api/signaling", cfg.Signaling.URL)
	assert.Equal(t, 45*time.Second, cfg.Call.RingingTimeout)
	assert.Equal(t, ":8085", cfg.Relay.Address)
	assert.Equal(t, "relay-secret", cfg.Relay.JWTSecret)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFromStringInvalid(t *testing.T) {
	_, err := config.LoadConfigFromString("identity: [not a mapping")
	assert.Error(t, err)
}

func TestLoadConfigPrefersEnv(t *testing.T) {
	t.Setenv("CONFIG", sampleConfig)

	cfg, err := config.LoadConfig("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "@alice:test", cfg.Identity.UserID())
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG", "")

	_, err := config.LoadConfig("does-not-exist.yaml")
	assert.Error(t, err)
}
