package api

import (
	"github.com/tarsy-labs/agentgw/pkg/agentgraph"
	"github.com/tarsy-labs/agentgw/pkg/database"
	"github.com/tarsy-labs/agentgw/pkg/streamregistry"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Version  string                    `json:"version,omitempty"`
	Database *database.HealthStatus    `json:"database,omitempty"`
	Streams  *streamregistry.Health    `json:"streams,omitempty"`
}

// StreamResponse is returned by POST /api/v1/threads/:thread_id/stream. The
// live token-by-token view of the turn is delivered over the WebSocket;
// this is the synchronous summary once the HTTP call returns (either the
// turn completed, or it parked at human_review).
type StreamResponse struct {
	ThreadID    string              `json:"thread_id"`
	Messages    []agentgraph.Message `json:"messages"`
	Interrupted bool                `json:"interrupted"`
}

// DecideApprovalResponse is returned by POST /api/v1/approvals/:approval_id.
type DecideApprovalResponse struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
}

// ServerResponse describes one registered MCP server.
type ServerResponse struct {
	ServerID     string `json:"server_id"`
	ServerName   string `json:"server_name"`
	Endpoint     string `json:"endpoint"`
	IsActive     bool   `json:"is_active"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
}

// StartOAuthResponse is returned by POST /api/v1/mcp-servers/oauth/start.
type StartOAuthResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// ToolPermissionResponse describes one tool's enabled state for a server.
type ToolPermissionResponse struct {
	ToolName string `json:"tool_name"`
	Enabled  bool   `json:"enabled"`
}
