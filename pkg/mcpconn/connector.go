// Package mcpconn manages one live connection to one user's MCP server:
// token refresh, transport selection (SSE with streamable-HTTP fallback),
// session lifecycle, and the retry policy that keeps a single expired token
// or a single dropped connection from surfacing as a hard failure.
package mcpconn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tarsy-labs/agentgw/pkg/config"
	"github.com/tarsy-labs/agentgw/pkg/oauthcreds"
	"github.com/tarsy-labs/agentgw/pkg/version"
)

// CredentialsStore persists and reloads a server's OAuth credentials,
// independent of whatever request or transaction is currently in flight —
// mirroring the original connector's "fresh query by setting_id" write,
// which deliberately doesn't reuse the caller's DB session.
type CredentialsStore interface {
	Load(ctx context.Context, serverID string) (*oauthcreds.Credentials, error)
	Save(ctx context.Context, serverID string, creds *oauthcreds.Credentials) error
}

// Connector is scoped to a single (user, server) pair.
type Connector struct {
	ServerID   string
	ServerName string
	serverURL  string
	transport  config.TransportConfig

	oauthConfig  *oauthcreds.OAuthConfig
	tokenManager *oauthcreds.TokenManager
	store        CredentialsStore

	credsMu     sync.Mutex
	credentials *oauthcreds.Credentials

	sessionMu sync.Mutex
	session   *mcpsdk.ClientSession
	client    *mcpsdk.Client

	toolCache *ToolCache
	logger    *slog.Logger
}

// NewConnector builds a Connector for one server. creds may be nil for
// unauthenticated (e.g. local stdio) servers.
func NewConnector(
	serverID, serverName, serverURL string,
	transport config.TransportConfig,
	oauthConfig *oauthcreds.OAuthConfig,
	creds *oauthcreds.Credentials,
	tokenManager *oauthcreds.TokenManager,
	store CredentialsStore,
	toolCache *ToolCache,
	logger *slog.Logger,
) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		ServerID:     serverID,
		ServerName:   serverName,
		serverURL:    serverURL,
		transport:    transport,
		oauthConfig:  oauthConfig,
		tokenManager: tokenManager,
		store:        store,
		credentials:  creds,
		toolCache:    toolCache,
		logger:       logger,
	}
}

// ensureValidToken refreshes the access token if it is at or past expiry.
// Mirrors _ensure_valid_token: a server with no credentials or no
// oauth_config is assumed valid (it will fail naturally downstream if not).
// If the refresh-grant exchange fails, it consults the persisted
// credentials once — another replica may already have refreshed this
// server's token — before giving up and escalating to
// RequiresAuthenticationError.
func (c *Connector) ensureValidToken(ctx context.Context) error {
	c.credsMu.Lock()
	creds := c.credentials
	c.credsMu.Unlock()

	if creds == nil || c.ServerName == "" || c.oauthConfig == nil {
		return nil
	}
	if !oauthcreds.IsExpired(creds) {
		return nil
	}

	if err := c.refreshToken(ctx); err == nil {
		return nil
	}

	if c.store != nil {
		if persisted, loadErr := c.store.Load(ctx, c.ServerID); loadErr == nil && persisted != nil && !oauthcreds.IsExpired(persisted) {
			c.credsMu.Lock()
			c.credentials = persisted
			c.credsMu.Unlock()
			return nil
		}
	}

	return &RequiresAuthenticationError{ServerName: c.ServerName}
}

// refreshToken performs the refresh-grant exchange and, on success, updates
// the in-memory credentials and persists them via a fresh store call. A
// persistence failure is logged but does not fail the call — the refreshed
// token is still good for this request.
func (c *Connector) refreshToken(ctx context.Context) error {
	c.credsMu.Lock()
	creds := c.credentials
	c.credsMu.Unlock()

	c.logger.Info("token expired, attempting refresh", "server", c.ServerName)

	newCreds, err := c.tokenManager.Refresh(ctx, c.ServerName, creds, c.oauthConfig)
	if err != nil {
		c.logger.Error("token refresh failed", "server", c.ServerName, "error", err)
		return fmt.Errorf("refresh token for %q: %w", c.ServerName, err)
	}

	c.credsMu.Lock()
	c.credentials = newCreds
	c.credsMu.Unlock()

	if c.store != nil {
		if saveErr := c.store.Save(ctx, c.ServerID, newCreds); saveErr != nil {
			c.logger.Error("failed to persist refreshed credentials", "server", c.ServerName, "error", saveErr)
		}
	}
	return nil
}

func (c *Connector) token() string {
	c.credsMu.Lock()
	defer c.credsMu.Unlock()
	if c.credentials == nil {
		return ""
	}
	return c.credentials.AccessToken
}

func (c *Connector) headers() map[string]string {
	return buildHeaders(c.serverURL, c.token())
}

// getSession returns the live session, connecting (SSE first, streamable
// HTTP on failure) if none exists yet.
func (c *Connector) getSession(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.session != nil {
		return c.session, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, MCPInitTimeout)
	defer cancel()

	// Manual (stdio) server registrations have exactly one transport; the
	// SSE/streamable-HTTP fallback dance only applies to remote servers.
	if c.transport.Type == config.TransportTypeStdio {
		session, client, err := c.connect(initCtx, c.transport)
		if err != nil {
			return nil, fmt.Errorf("connect to %q: %w", c.ServerName, err)
		}
		c.session, c.client = session, client
		return session, nil
	}

	sseCfg := c.transport
	sseCfg.Type = config.TransportTypeSSE
	if session, client, err := c.connect(initCtx, sseCfg); err == nil {
		c.session, c.client = session, client
		return session, nil
	} else {
		c.logger.Warn("SSE connect failed, falling back to streamable HTTP", "server", c.ServerName, "error", err)
	}

	httpCfg := c.transport
	httpCfg.Type = config.TransportTypeHTTP
	session, client, err := c.connect(initCtx, httpCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %q via SSE or streamable HTTP: %w", c.ServerName, err)
	}
	c.session, c.client = session, client
	return session, nil
}

func (c *Connector) connect(ctx context.Context, cfg config.TransportConfig) (*mcpsdk.ClientSession, *mcpsdk.Client, error) {
	transport, err := createTransport(cfg, c.headers())
	if err != nil {
		return nil, nil, err
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return session, client, nil
}

// closeSession tears down the current session, if any, so the next call
// reconnects from scratch.
func (c *Connector) closeSession() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
		c.client = nil
	}
}

// ListTools returns this server's advertised tools, using the shared
// process-wide cache keyed by (server URL, token) before opening a session.
// Unlike the original connector, schema normalization of inputSchema is not
// needed here: the Go SDK already decodes it into a typed schema on the
// wire, where the Python client sometimes receives it as a raw string.
func (c *Connector) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	tok := c.token()
	if cached, ok := c.toolCache.Get(c.serverURL, tok); ok {
		return cached, nil
	}

	session, err := c.getSession(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", c.ServerName, err)
	}

	tools := result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	c.toolCache.Put(c.serverURL, tok, tools)
	return tools, nil
}

// RunTool executes a tool call, applying the Auth/Transient/Other retry
// policy described in the MCP Connector design. It never returns a Go error
// for an ordinary tool failure — those come back as plain-text content, so a
// bad tool call doesn't crash the agent loop — except for
// RequiresAuthenticationError, which must propagate so the caller can
// surface a re-auth prompt.
func (c *Connector) RunTool(ctx context.Context, toolName string, args map[string]any) (string, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return "", err
	}

	result, err := c.callToolOnce(ctx, toolName, args)
	if err == nil {
		return extractTextContent(result), nil
	}

	switch ClassifyError(err) {
	case RetryAfterTokenRefresh:
		if refreshErr := c.refreshToken(ctx); refreshErr != nil {
			return "", &RequiresAuthenticationError{ServerName: c.ServerName}
		}
		c.closeSession() // new token invalidates any existing session headers
		result, err = c.callToolOnce(ctx, toolName, args)
		if err != nil {
			return "", &RequiresAuthenticationError{ServerName: c.ServerName}
		}
		return extractTextContent(result), nil

	case RetryNewSession:
		c.logger.Warn("tool call failed, recreating session and retrying", "server", c.ServerName, "tool", toolName, "error", err)
		c.closeSession()
		c.toolCache.Invalidate(c.serverURL, c.token())
		c.backoff(ctx)
		result, err = c.callToolOnce(ctx, toolName, args)
		if err != nil {
			return fmt.Sprintf("Error: could not connect to MCP server %q. Details: %s", c.ServerName, err), nil
		}
		return extractTextContent(result), nil

	default:
		return fmt.Sprintf("Error: tool execution failed for %q on %q: %s", toolName, c.ServerName, err), nil
	}
}

func (c *Connector) backoff(ctx context.Context) {
	d := RetryBackoffMin + time.Duration(rand.Int64N(int64(RetryBackoffMax-RetryBackoffMin)))
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (c *Connector) callToolOnce(ctx context.Context, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	session, err := c.getSession(ctx)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()
	return session.CallTool(opCtx, &mcpsdk.CallToolParams{Name: toolName, Arguments: args})
}

// extractTextContent concatenates all TextContent parts of a tool result.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var b strings.Builder
	for _, part := range result.Content {
		if tc, ok := part.(*mcpsdk.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// Close tears down this connector's session.
func (c *Connector) Close() error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.client = nil
	return err
}
