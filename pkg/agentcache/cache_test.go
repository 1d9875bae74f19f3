package agentcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_StableUnderServerOrder(t *testing.T) {
	a := FingerprintInput{Servers: []string{"figma", "notion"}, Provider: "openai", Model: "gpt-4o"}
	b := FingerprintInput{Servers: []string{"notion", "figma"}, Provider: "openai", Model: "gpt-4o"}

	ka, err := Fingerprint(a)
	require.NoError(t, err)
	kb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb, "server list order must not change the fingerprint")
}

func TestFingerprint_ChangesOnToolPermissionDrift(t *testing.T) {
	base := FingerprintInput{
		Servers:         []string{"figma"},
		Provider:        "openai",
		Model:           "gpt-4o",
		ToolPermissions: map[string]map[string]bool{"figma": {"get_file": true}},
	}
	drifted := base
	drifted.ToolPermissions = map[string]map[string]bool{"figma": {"get_file": false}}

	k1, err := Fingerprint(base)
	require.NoError(t, err)
	k2, err := Fingerprint(drifted)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestCache_GetOrCreate_HitsUntilFingerprintDrifts(t *testing.T) {
	c := New[string]()
	builds := 0
	build := func(context.Context) (string, error) {
		builds++
		return "compiled-agent", nil
	}

	input := FingerprintInput{Servers: []string{"figma"}, Provider: "openai", Model: "gpt-4o"}
	_, hit, err := c.GetOrCreate(context.Background(), "user-1", input, build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, builds)

	_, hit, err = c.GetOrCreate(context.Background(), "user-1", input, build)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, builds, "unchanged fingerprint must not rebuild")

	drifted := input
	drifted.Model = "gpt-4o-mini"
	_, hit, err = c.GetOrCreate(context.Background(), "user-1", drifted, build)
	require.NoError(t, err)
	assert.False(t, hit, "model change must force a rebuild")
	assert.Equal(t, 2, builds)
}

func TestCache_Invalidate_ForcesRebuild(t *testing.T) {
	c := New[string]()
	builds := 0
	build := func(context.Context) (string, error) {
		builds++
		return "compiled-agent", nil
	}
	input := FingerprintInput{Servers: []string{"figma"}}

	_, _, err := c.GetOrCreate(context.Background(), "user-1", input, build)
	require.NoError(t, err)
	c.Invalidate("user-1")

	_, hit, err := c.GetOrCreate(context.Background(), "user-1", input, build)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, builds)
}

func TestCache_GetOrCreate_PerUserIsolation(t *testing.T) {
	c := New[string]()
	build := func(context.Context) (string, error) { return "agent", nil }
	input := FingerprintInput{Servers: []string{"figma"}}

	_, hit1, err := c.GetOrCreate(context.Background(), "user-1", input, build)
	require.NoError(t, err)
	_, hit2, err := c.GetOrCreate(context.Background(), "user-2", input, build)
	require.NoError(t, err)
	assert.False(t, hit1)
	assert.False(t, hit2, "a second user's first request must not be served from user-1's cache entry")
}
