package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/ent/mcpserverconfig"
	"github.com/tarsy-labs/agentgw/ent/oauthstate"
	"github.com/tarsy-labs/agentgw/pkg/oauthcreds"
)

// oauthStateTTL bounds how long an issued authorization request may sit
// unfinalized before it is no longer honored.
const oauthStateTTL = 10 * time.Minute

// listServersHandler handles GET /api/v1/mcp-servers.
func (s *Server) listServersHandler(c *echo.Context) error {
	userID := extractUserID(c)
	rows, err := s.activeServers(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}

	out := make([]*ServerResponse, 0, len(rows))
	for _, cfg := range rows {
		resp := &ServerResponse{
			ServerID:   cfg.ID,
			ServerName: cfg.ServerName,
			Endpoint:   cfg.Endpoint,
			IsActive:   cfg.IsActive,
		}
		if cfg.LastSyncedAt != nil {
			resp.LastSyncedAt = cfg.LastSyncedAt.Format(time.RFC3339)
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

// registerServerHandler handles POST /api/v1/mcp-servers: direct url +
// credentials registration, for servers that don't speak OAuth.
func (s *Server) registerServerHandler(c *echo.Context) error {
	userID := extractUserID(c)
	var req RegisterServerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ServerName == "" || req.Endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "server_name and endpoint are required")
	}

	var creds map[string]interface{}
	if req.BearerToken != "" {
		encoded, err := encodeCredentials(&oauthcreds.Credentials{AccessToken: req.BearerToken})
		if err != nil {
			return mapServiceError(err)
		}
		creds = encoded
	}

	create := s.entc.McpServerConfig.Create().
		SetID("srv-" + uuid.NewString()).
		SetUserID(userID).
		SetServerName(req.ServerName).
		SetEndpoint(req.Endpoint)
	if creds != nil {
		create = create.SetCredentials(creds)
	}
	cfg, err := create.Save(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	s.catalogs.Invalidate(userID)

	return c.JSON(http.StatusCreated, &ServerResponse{
		ServerID:   cfg.ID,
		ServerName: cfg.ServerName,
		Endpoint:   cfg.Endpoint,
		IsActive:   cfg.IsActive,
	})
}

// startOAuthHandler handles POST /api/v1/mcp-servers/oauth/start: Smart Auth
// discovery against the target server, followed by a PKCE-backed
// authorization URL the client redirects the user to.
func (s *Server) startOAuthHandler(c *echo.Context) error {
	userID := extractUserID(c)
	var req StartOAuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ServerName == "" || req.ServerURL == "" || req.RedirectURI == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "server_name, server_url and redirect_uri are required")
	}
	if req.ClientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is required: register an OAuth application with the provider first")
	}

	ctx := c.Request().Context()

	// Manual override takes precedence over discovery, same as letting an
	// operator paste in advanced settings when discovery can't find them.
	authorizationURL, tokenURL := req.AuthorizationURL, req.TokenURL
	if authorizationURL == "" || tokenURL == "" {
		metadata, err := s.oauthDiscoverer.DiscoverMetadata(ctx, req.ServerURL)
		if err != nil {
			return mapServiceError(err)
		}
		if authorizationURL == "" {
			authorizationURL = metadata.AuthorizationEndpoint
		}
		if tokenURL == "" {
			tokenURL = metadata.TokenEndpoint
		}
	}
	if authorizationURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "could not determine authorization_url; provide it manually")
	}

	pkce, err := oauthcreds.GeneratePKCE()
	if err != nil {
		return mapServiceError(err)
	}
	state, err := oauthcreds.GenerateState()
	if err != nil {
		return mapServiceError(err)
	}

	create := s.entc.OAuthState.Create().
		SetState(state).
		SetUserID(userID).
		SetClientID(req.ClientID).
		SetTokenURL(tokenURL).
		SetAuthorizationURL(authorizationURL).
		SetRedirectURI(req.RedirectURI).
		SetServerURL(req.ServerURL).
		SetServerName(req.ServerName).
		SetPkceVerifier(pkce.CodeVerifier).
		SetExpiresAt(time.Now().Add(oauthStateTTL))
	if req.ClientSecret != "" {
		create = create.SetClientSecret(req.ClientSecret)
	}
	if req.Scope != "" {
		create = create.SetScope(req.Scope)
	}
	if req.SettingID != nil {
		create = create.SetSettingID(*req.SettingID)
	}
	if err := create.Exec(ctx); err != nil {
		return mapServiceError(err)
	}

	authURL, err := oauthcreds.BuildAuthorizationURL(authorizationURL, req.ClientID, req.RedirectURI, state, req.Scope, pkce)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &StartOAuthResponse{AuthorizationURL: authURL, State: state})
}

// finalizeOAuthHandler handles POST /api/v1/mcp-servers/oauth/finalize: the
// provider redirect lands here with a code, which is exchanged for tokens
// and written onto a new or existing McpServerConfig row.
func (s *Server) finalizeOAuthHandler(c *echo.Context) error {
	var req FinalizeOAuthRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.State == "" || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "state and code are required")
	}

	ctx := c.Request().Context()
	st, err := s.entc.OAuthState.Query().Where(oauthstate.State(req.State)).Only(ctx)
	if err != nil {
		return mapServiceError(err)
	}
	// Single-use: remove the state regardless of what happens next so a
	// replayed callback can never finalize twice.
	if delErr := s.entc.OAuthState.DeleteOne(st).Exec(ctx); delErr != nil {
		return mapServiceError(delErr)
	}
	if st.ExpiresAt.Before(time.Now()) {
		return echo.NewHTTPError(http.StatusGone, "oauth authorization expired, restart the flow")
	}

	oauthCfg := &oauthcreds.OAuthConfig{
		ClientID:         st.ClientID,
		TokenURL:         st.TokenURL,
		AuthorizationURL: st.AuthorizationURL,
	}
	if st.ClientSecret != nil {
		oauthCfg.ClientSecret = *st.ClientSecret
	}
	if st.Scope != nil {
		oauthCfg.Scope = *st.Scope
	}

	creds, err := s.tokenManager.ExchangeCode(ctx, oauthCfg, req.Code, st.RedirectURI, st.PkceVerifier)
	if err != nil {
		return mapServiceError(err)
	}
	creds.OAuthConfig = oauthCfg
	encoded, err := encodeCredentials(creds)
	if err != nil {
		return mapServiceError(err)
	}

	var cfg *ent.McpServerConfig
	if st.SettingID != nil {
		cfg, err = s.entc.McpServerConfig.UpdateOneID(*st.SettingID).
			SetCredentials(encoded).
			Save(ctx)
	} else {
		cfg, err = s.entc.McpServerConfig.Create().
			SetID("srv-" + uuid.NewString()).
			SetUserID(st.UserID).
			SetServerName(st.ServerName).
			SetEndpoint(st.ServerURL).
			SetCredentials(encoded).
			Save(ctx)
	}
	if err != nil {
		return mapServiceError(err)
	}
	s.catalogs.Invalidate(st.UserID)

	return c.JSON(http.StatusOK, &ServerResponse{
		ServerID:   cfg.ID,
		ServerName: cfg.ServerName,
		Endpoint:   cfg.Endpoint,
		IsActive:   cfg.IsActive,
	})
}

// refreshManifestHandler handles POST /api/v1/mcp-servers/:server_id/refresh:
// re-fetches the server's tool manifest and invalidates the user's cached
// catalog so the next turn picks up the change.
func (s *Server) refreshManifestHandler(c *echo.Context) error {
	userID := extractUserID(c)
	serverID := c.Param("server_id")
	ctx := c.Request().Context()

	cfg, err := s.entc.McpServerConfig.Get(ctx, serverID)
	if err != nil {
		return mapServiceError(err)
	}
	if cfg.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "server belongs to another user")
	}

	_, connectors, err := s.catalogFor(ctx, userID, "", "")
	if err != nil {
		return mapServiceError(err)
	}
	conn, ok := connectors[serverID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "server not found")
	}

	tools, err := conn.ListTools(ctx)
	if err != nil {
		return mapServiceError(err)
	}
	manifest, err := encodeManifest(tools)
	if err != nil {
		return mapServiceError(err)
	}

	now := time.Now()
	if err := s.entc.McpServerConfig.UpdateOneID(serverID).
		SetToolsManifest(manifest).
		SetLastSyncedAt(now).
		Exec(ctx); err != nil {
		return mapServiceError(err)
	}
	s.catalogs.Invalidate(userID)

	return c.JSON(http.StatusOK, &ServerResponse{
		ServerID:     cfg.ID,
		ServerName:   cfg.ServerName,
		Endpoint:     cfg.Endpoint,
		IsActive:     cfg.IsActive,
		LastSyncedAt: now.Format(time.RFC3339),
	})
}
