package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceKeys(t *testing.T) {
	keys := ParseServiceKeys("recommender:abc123:read:vkm,write:vkm; reporting:def456:read:vkm ;broken;:nokey:read:vkm")

	require.Len(t, keys, 2)
	assert.Equal(t, ServiceKey{ID: "recommender", Key: "abc123", Scopes: []string{"read:vkm", "write:vkm"}}, keys[0])
	assert.Equal(t, ServiceKey{ID: "reporting", Key: "def456", Scopes: []string{"read:vkm"}}, keys[1])
}

func TestParseServiceKeys_NoScopes(t *testing.T) {
	keys := ParseServiceKeys("svc:key")

	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Scopes)
}

func TestParseServiceKeys_Empty(t *testing.T) {
	assert.Empty(t, ParseServiceKeys(""))
}

func TestLoadRateLimitConfig_Defaults(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 200, cfg.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.RefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.TTL, "ttl is raised to cover two refill intervals")
}

func TestEnvBool(t *testing.T) {
	t.Setenv("X_FLAG", "off")
	assert.False(t, envBool("X_FLAG", true))
	t.Setenv("X_FLAG", "garbage")
	assert.True(t, envBool("X_FLAG", true))
}
