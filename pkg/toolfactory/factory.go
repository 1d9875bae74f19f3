package toolfactory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tarsy-labs/agentgw/pkg/permission"
)

// SearchToolName is the first-class tool name used for dynamic tool
// discovery mid-conversation.
const SearchToolName = "search_tools"

// connector is the slice of *mcpconn.Connector the factory needs. Kept as
// an interface so toolfactory doesn't have to import mcpconn's transport/
// retry machinery just to build tool handles from it, and so tests can
// fake it directly.
type connector interface {
	ListTools(ctx context.Context) ([]*mcpsdk.Tool, error)
	RunTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error)
}

// Server is one active MCP server registration to realize tools from.
type Server struct {
	ServerID   string
	ServerName string
	Connector  connector
	// CachedManifest, when non-nil, is used instead of calling
	// Connector.ListTools — the manifest-cache-first behavior from C3.
	CachedManifest []*mcpsdk.Tool
}

// permissionStore is the read surface toolfactory needs from the
// Permission Store.
type permissionStore interface {
	DisabledTools(ctx context.Context, userID, serverID string) (map[string]bool, error)
}

var _ permissionStore = (*permission.Store)(nil)

// Build realizes a Catalog from a user's active servers: fetches (or
// reuses cached) manifests, drops explicitly disabled tools, sanitizes
// schemas, builds input models, and runs the global uniqueness pass over
// names before wrapping each surviving tool in an invocation closure.
func Build(ctx context.Context, userID string, servers []Server, perms permissionStore, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	type built struct {
		rawName     string
		serverName  string
		serverID    string
		description string
		input       InputModel
		invoke      InvokeFunc
	}
	var all []built

	for _, server := range servers {
		tools := server.CachedManifest
		if tools == nil {
			fetched, err := server.Connector.ListTools(ctx)
			if err != nil {
				logger.Warn("skipping tools for server due to list error", "server", server.ServerName, "error", err)
				continue
			}
			tools = fetched
		}

		disabled, err := perms.DisabledTools(ctx, userID, server.ServerID)
		if err != nil {
			return nil, fmt.Errorf("load disabled tools for server %q: %w", server.ServerName, err)
		}

		srv := server // capture for closures
		for _, tool := range tools {
			if disabled[tool.Name] {
				continue
			}

			schema, err := decodeInputSchema(tool.InputSchema)
			if err != nil {
				logger.Error("dropping tool with unparseable schema", "server", srv.ServerName, "tool", tool.Name, "error", err)
				continue
			}
			input := BuildInputModel(schema)

			rawName := tool.Name
			all = append(all, built{
				rawName:     rawName,
				serverName:  srv.ServerName,
				serverID:    srv.ServerID,
				description: tool.Description,
				input:       input,
				invoke: func(ctx context.Context, args map[string]interface{}) (string, error) {
					return srv.Connector.RunTool(ctx, rawName, args)
				},
			})
		}
	}

	// Namespacing, then a global dedup pass over the namespaced names.
	counts := map[string]int{}
	names := make([]string, len(all))
	for i, b := range all {
		name := sanitizeServerName(b.serverName) + "_" + b.rawName
		names[i] = name
		counts[name]++
	}

	seen := map[string]int{}
	handles := make([]*ToolHandle, len(all))
	byName := make(map[string]*ToolHandle, len(all))
	for i, b := range all {
		name := names[i]
		description := b.description
		if counts[name] > 1 {
			seen[name]++
			n := seen[name]
			if n > 1 {
				name = fmt.Sprintf("%s_%d", names[i], n)
				description = fmt.Sprintf("%s (Variant %d)", b.description, n)
			}
		}

		h := &ToolHandle{
			Name:        name,
			RawName:     b.rawName,
			ServerName:  b.serverName,
			ServerID:    b.serverID,
			Description: description,
			Input:       b.input,
			Invoke:      b.invoke,
		}
		handles[i] = h
		byName[name] = h
	}

	catalog := &Catalog{handles: handles, byName: byName}
	catalog.index = newSearchIndex(handles)
	return catalog, nil
}

// sanitizeServerName mirrors the original's server_name.replace(' ', '').
func sanitizeServerName(name string) string {
	return strings.ReplaceAll(name, " ", "")
}

func decodeInputSchema(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return schema, nil
}
