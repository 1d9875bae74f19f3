// Package api provides the HTTP API for the gateway.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/pkg/agentcache"
	"github.com/tarsy-labs/agentgw/pkg/approval"
	"github.com/tarsy-labs/agentgw/pkg/checkpoint"
	"github.com/tarsy-labs/agentgw/pkg/database"
	"github.com/tarsy-labs/agentgw/pkg/eventstream"
	"github.com/tarsy-labs/agentgw/pkg/llm"
	"github.com/tarsy-labs/agentgw/pkg/mcpconn"
	"github.com/tarsy-labs/agentgw/pkg/oauthcreds"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/tarsy-labs/agentgw/pkg/streamregistry"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
	"github.com/tarsy-labs/agentgw/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	dbClient *database.Client
	entc     *ent.Client

	oauthDiscoverer *oauthcreds.Discoverer
	tokenManager    *oauthcreds.TokenManager

	permissions *permission.Store
	pending     *permission.PendingRegistry
	approvals   *approval.Controller
	checkpoints *checkpoint.Store
	llmClient   *llm.Client
	catalogs    *agentcache.Cache[*toolfactory.Catalog]

	connManager *eventstream.ConnectionManager
	publisher   *eventstream.EventPublisher
	streams     *streamregistry.Registry

	// toolCache is shared across every Connector this process builds, so a
	// manifest fetched for one request warms the next one for the same
	// (server, token) pair.
	toolCache *mcpconn.ToolCache
}

// Deps bundles everything NewServer needs to wire the gateway's routes. All
// fields are required; the gateway has no optional subsystem the way the
// teacher's MCP-disabled health endpoint did.
type Deps struct {
	DBClient        *database.Client
	EntClient       *ent.Client
	OAuthDiscoverer *oauthcreds.Discoverer
	TokenManager    *oauthcreds.TokenManager
	Permissions     *permission.Store
	Pending         *permission.PendingRegistry
	Approvals       *approval.Controller
	Checkpoints     *checkpoint.Store
	LLMClient       *llm.Client
	Catalogs        *agentcache.Cache[*toolfactory.Catalog]
	ConnManager     *eventstream.ConnectionManager
	Publisher       *eventstream.EventPublisher
	Streams         *streamregistry.Registry
}

// NewServer creates a new API server with Echo v5.
func NewServer(deps Deps) *Server {
	e := echo.New()
	e.Use(securityHeaders())
	e.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s := &Server{
		echo:            e,
		dbClient:        deps.DBClient,
		entc:            deps.EntClient,
		oauthDiscoverer: deps.OAuthDiscoverer,
		tokenManager:    deps.TokenManager,
		permissions:     deps.Permissions,
		pending:         deps.Pending,
		approvals:       deps.Approvals,
		checkpoints:     deps.Checkpoints,
		llmClient:       deps.LLMClient,
		catalogs:        deps.Catalogs,
		connManager:     deps.ConnManager,
		publisher:       deps.Publisher,
		streams:         deps.Streams,
		toolCache:       mcpconn.NewToolCache(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	// Conversation streaming: start a new turn or resume one parked at
	// human_review.
	v1.POST("/threads/:thread_id/stream", s.streamHandler)
	v1.POST("/threads/:thread_id/cancel", s.cancelThreadHandler)

	// Approval decisions.
	v1.POST("/approvals/:approval_id", s.decideApprovalHandler)

	// MCP server registration.
	v1.GET("/mcp-servers", s.listServersHandler)
	v1.POST("/mcp-servers", s.registerServerHandler)
	v1.POST("/mcp-servers/oauth/start", s.startOAuthHandler)
	v1.POST("/mcp-servers/oauth/finalize", s.finalizeOAuthHandler)
	v1.POST("/mcp-servers/:server_id/refresh", s.refreshManifestHandler)

	// Tool permission listing/toggle.
	v1.GET("/mcp-servers/:server_id/tools", s.listToolPermissionsHandler)
	v1.PUT("/mcp-servers/:server_id/tools/:tool_name", s.setToolPermissionHandler)

	// WebSocket endpoint for real-time event streaming.
	v1.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address. It blocks until the
// server stops and returns ListenAndServe's error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{
			Status:   "unhealthy",
			Database: dbHealth,
		})
	}

	return c.JSON(http.StatusOK, &HealthResponse{
		Status:   "healthy",
		Version:  version.Full(),
		Database: dbHealth,
		Streams:  s.streams.Health(),
	})
}
