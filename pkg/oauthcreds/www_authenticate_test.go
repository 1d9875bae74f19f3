package oauthcreds

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWWWAuthenticate_ResourceMetadata(t *testing.T) {
	header := `Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`
	c, err := ParseWWWAuthenticate(header)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", c.Scheme)
	assert.Equal(t, "https://mcp.example.com/.well-known/oauth-protected-resource", c.ResourceMetadataURL)
}

func TestParseWWWAuthenticateFromResponse_Non401ReturnsNil(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	resp := rec.Result()
	assert.Nil(t, ParseWWWAuthenticateFromResponse(resp))
}
