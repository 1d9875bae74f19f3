package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/agentgw/pkg/agentcache"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
)

func newJSONContext(t *testing.T, e *echo.Echo, method, target string, body interface{}) (*echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func TestRegisterServerHandler_RequiresNameAndEndpoint(t *testing.T) {
	e := echo.New()
	s := &Server{}

	tests := []struct {
		name string
		req  RegisterServerRequest
	}{
		{name: "missing server_name", req: RegisterServerRequest{Endpoint: "https://mcp.example.com"}},
		{name: "missing endpoint", req: RegisterServerRequest{ServerName: "fs"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newJSONContext(t, e, http.MethodPost, "/api/v1/mcp-servers", tt.req)
			err := s.registerServerHandler(c)
			require.Error(t, err)
			he, ok := err.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, he.Code)
		})
	}
}

func TestStartOAuthHandler_RequiresClientID(t *testing.T) {
	e := echo.New()
	s := &Server{}
	c, _ := newJSONContext(t, e, http.MethodPost, "/api/v1/mcp-servers/oauth/start", StartOAuthRequest{
		ServerName:  "figma",
		ServerURL:   "https://mcp.figma.com",
		RedirectURI: "https://app.example.com/callback",
	})

	err := s.startOAuthHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "client_id")
}

func TestFinalizeOAuthHandler_RequiresStateAndCode(t *testing.T) {
	e := echo.New()
	s := &Server{}
	c, _ := newJSONContext(t, e, http.MethodPost, "/api/v1/mcp-servers/oauth/finalize", FinalizeOAuthRequest{})

	err := s.finalizeOAuthHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
}

func TestRegisterServerHandler_PersistsAndListsActiveServers(t *testing.T) {
	client := newTestClient(t)
	_, err := client.User.Create().SetID("user-1").Save(context.Background())
	require.NoError(t, err)

	e := echo.New()
	s := &Server{
		entc:        client,
		permissions: permission.NewStore(client),
		catalogs:    agentcache.New[*toolfactory.Catalog](),
	}

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/mcp-servers", RegisterServerRequest{
		ServerName:  "filesystem",
		Endpoint:    "https://mcp.example.com/fs",
		BearerToken: "tok-123",
	})
	c.Request().Header.Set("X-Forwarded-User", "user-1")
	require.NoError(t, s.registerServerHandler(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var created ServerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "filesystem", created.ServerName)
	assert.True(t, created.IsActive)

	listCtx, listRec := newJSONContext(t, e, http.MethodGet, "/api/v1/mcp-servers", nil)
	listCtx.Request().Header.Set("X-Forwarded-User", "user-1")
	require.NoError(t, s.listServersHandler(listCtx))
	assert.Equal(t, http.StatusOK, listRec.Code)

	var listed []*ServerResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "filesystem", listed[0].ServerName)
}
