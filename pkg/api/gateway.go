package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/ent/mcpserverconfig"
	"github.com/tarsy-labs/agentgw/pkg/agentcache"
	"github.com/tarsy-labs/agentgw/pkg/agentgraph"
	"github.com/tarsy-labs/agentgw/pkg/config"
	"github.com/tarsy-labs/agentgw/pkg/eventstream"
	"github.com/tarsy-labs/agentgw/pkg/mcpconn"
	"github.com/tarsy-labs/agentgw/pkg/oauthcreds"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
)

// eventSink adapts an eventstream.EventPublisher, bound to one thread, to
// agentgraph.EventSink. Publish errors are swallowed — live streaming is
// best-effort; a dropped token or tool notice never fails the turn, same as
// publishTurnEvents's terminal events.
type eventSink struct {
	publisher *eventstream.EventPublisher
	threadID  string
}

func newEventSink(publisher *eventstream.EventPublisher, threadID string) *eventSink {
	return &eventSink{publisher: publisher, threadID: threadID}
}

var _ agentgraph.EventSink = (*eventSink)(nil)

func (e *eventSink) PublishLLMToken(ctx context.Context, delta string) {
	_ = e.publisher.PublishLLMToken(ctx, e.threadID, eventstream.LLMTokenPayload{
		Type:      eventstream.EventTypeLLMToken,
		ThreadID:  e.threadID,
		Delta:     delta,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

func (e *eventSink) PublishToolStart(ctx context.Context, toolCallID, toolName string, input map[string]interface{}) {
	_ = e.publisher.PublishScratchpad(ctx, e.threadID, eventstream.ScratchpadPayload{
		Type:       eventstream.EventTypeScratchpad,
		ThreadID:   e.threadID,
		Phase:      eventstream.ScratchpadPhaseToolStart,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Input:      input,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	})
}

func (e *eventSink) PublishToolEnd(ctx context.Context, toolCallID, toolName, output string, isError bool) {
	_ = e.publisher.PublishScratchpad(ctx, e.threadID, eventstream.ScratchpadPayload{
		Type:       eventstream.EventTypeScratchpad,
		ThreadID:   e.threadID,
		Phase:      eventstream.ScratchpadPhaseToolEnd,
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Output:     output,
		IsError:    isError,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	})
}

// entCredentialsStore persists a Connector's refreshed token back onto its
// McpServerConfig row. Every call opens its own query, deliberately not
// reusing whatever transaction is in flight elsewhere — a token refresh
// must survive independent of the request that triggered it.
type entCredentialsStore struct {
	client *ent.Client
}

func (e *entCredentialsStore) Load(ctx context.Context, serverID string) (*oauthcreds.Credentials, error) {
	cfg, err := e.client.McpServerConfig.Get(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server config %q: %w", serverID, err)
	}
	return decodeCredentials(cfg.Credentials)
}

func (e *entCredentialsStore) Save(ctx context.Context, serverID string, creds *oauthcreds.Credentials) error {
	encoded, err := encodeCredentials(creds)
	if err != nil {
		return err
	}
	return e.client.McpServerConfig.UpdateOneID(serverID).SetCredentials(encoded).Exec(ctx)
}

func decodeCredentials(raw map[string]interface{}) (*oauthcreds.Credentials, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal stored credentials: %w", err)
	}
	var creds oauthcreds.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("decode stored credentials: %w", err)
	}
	return &creds, nil
}

func encodeCredentials(creds *oauthcreds.Credentials) (map[string]interface{}, error) {
	if creds == nil {
		return nil, nil
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("re-decode credentials: %w", err)
	}
	return out, nil
}

// decodeManifest decodes a McpServerConfig.tools_manifest JSON blob back
// into the mcpsdk.Tool shape toolfactory.Server.CachedManifest expects.
func decodeManifest(raw []map[string]interface{}) ([]*mcpsdk.Tool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal cached manifest: %w", err)
	}
	var tools []*mcpsdk.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("decode cached manifest: %w", err)
	}
	return tools, nil
}

// encodeManifest is the inverse of decodeManifest, used when persisting a
// freshly fetched manifest back onto McpServerConfig.tools_manifest.
func encodeManifest(tools []*mcpsdk.Tool) ([]map[string]interface{}, error) {
	data, err := json.Marshal(tools)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("re-decode manifest: %w", err)
	}
	return out, nil
}

// activeServers loads every active McpServerConfig row for userID.
func (s *Server) activeServers(ctx context.Context, userID string) ([]*ent.McpServerConfig, error) {
	rows, err := s.entc.McpServerConfig.Query().
		Where(mcpserverconfig.UserID(userID), mcpserverconfig.IsActive(true)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query active servers: %w", err)
	}
	return rows, nil
}

// buildConnectors creates one mcpconn.Connector per active server and
// returns them alongside the toolfactory.Server descriptors the catalog
// builder needs.
func (s *Server) buildConnectors(ctx context.Context, userID string, rows []*ent.McpServerConfig) (map[string]*mcpconn.Connector, []toolfactory.Server, error) {
	connectors := make(map[string]*mcpconn.Connector, len(rows))
	servers := make([]toolfactory.Server, 0, len(rows))

	for _, cfg := range rows {
		creds, err := decodeCredentials(cfg.Credentials)
		if err != nil {
			return nil, nil, err
		}
		var oauthCfg *oauthcreds.OAuthConfig
		if creds != nil {
			oauthCfg = creds.OAuthConfig
		}

		conn := mcpconn.NewConnector(
			cfg.ID, cfg.ServerName, cfg.Endpoint,
			config.TransportConfig{Type: config.TransportTypeHTTP, URL: cfg.Endpoint},
			oauthCfg, creds, s.tokenManager,
			&entCredentialsStore{client: s.entc}, s.toolCache, nil,
		)
		connectors[cfg.ID] = conn

		manifest, err := decodeManifest(cfg.ToolsManifest)
		if err != nil {
			return nil, nil, err
		}
		servers = append(servers, toolfactory.Server{
			ServerID:       cfg.ID,
			ServerName:     cfg.ServerName,
			Connector:      conn,
			CachedManifest: manifest,
		})
	}
	return connectors, servers, nil
}

// catalogFor builds (or reuses, per agentcache) the user's compiled tool
// catalog, fingerprinted on the active server set, their tool permissions,
// and the requested model/provider, so a server add/remove, a permission
// toggle, or a model switch all force a rebuild.
func (s *Server) catalogFor(ctx context.Context, userID, modelProvider, model string) (*toolfactory.Catalog, map[string]*mcpconn.Connector, error) {
	rows, err := s.activeServers(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	connectors, servers, err := s.buildConnectors(ctx, userID, rows)
	if err != nil {
		return nil, nil, err
	}

	fingerprint := agentcache.FingerprintInput{
		ToolPermissions: make(map[string]map[string]bool, len(rows)),
		Provider:        modelProvider,
		Model:           model,
	}
	for _, cfg := range rows {
		fingerprint.Servers = append(fingerprint.Servers, cfg.ID)
		disabled, err := s.permissions.DisabledTools(ctx, userID, cfg.ID)
		if err != nil {
			return nil, nil, err
		}
		perms := make(map[string]bool, len(disabled))
		for tool := range disabled {
			perms[tool] = false
		}
		fingerprint.ToolPermissions[cfg.ID] = perms
	}

	catalog, _, err := s.catalogs.GetOrCreate(ctx, userID, fingerprint, func(ctx context.Context) (*toolfactory.Catalog, error) {
		return toolfactory.Build(ctx, userID, servers, s.permissions, nil)
	})
	if err != nil {
		return nil, nil, err
	}
	return catalog, connectors, nil
}

// runnerFor builds the agentgraph.Runner for one turn of userID's thread.
// modelProvider/model select the LLM for this turn; either may be empty to
// fall back to the sidecar's configured default.
func (s *Server) runnerFor(ctx context.Context, userID, threadID, modelProvider, model string) (*agentgraph.Runner, error) {
	catalog, _, err := s.catalogFor(ctx, userID, modelProvider, model)
	if err != nil {
		return nil, err
	}

	deps := &agentgraph.Deps{
		LLM:           s.llmClient,
		Catalog:       catalog,
		Permissions:   s.permissions,
		Pending:       s.pending,
		UserID:        userID,
		ThreadID:      threadID,
		ModelProvider: modelProvider,
		Model:         model,
		Events:        newEventSink(s.publisher, threadID),
	}
	graph := agentgraph.Build(deps)
	return &agentgraph.Runner{
		Graph:      graph,
		Checkpoint: s.checkpoints,
		UserID:     userID,
		ThreadID:   threadID,
	}, nil
}
