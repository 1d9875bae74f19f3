// Package toolfactory implements the Tool Factory (C3): translating a
// server's MCP tool manifest into typed, permission-aware, uniquely-named
// tool handles, plus the search_tools BM25 index used for dynamic binding.
package toolfactory

import "context"

// InvokeFunc calls the underlying MCP tool. Implementations return the
// result (or an error string, per the MCP convention carried from
// pkg/mcpconn) rather than a Go error for ordinary tool failures.
type InvokeFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// ToolHandle is a tool ready to be bound to the LLM: a unique exposed name,
// a human description, the sanitized input model, and an invocation
// closure bound to the owning connector.
type ToolHandle struct {
	// Name is the globally-unique exposed name (namespaced, possibly
	// suffixed after dedup).
	Name string
	// RawName is the name the MCP server itself knows the tool by.
	RawName     string
	ServerName  string
	ServerID    string
	Description string
	Input       InputModel
	Invoke      InvokeFunc
}

// Catalog is the full set of tool handles realized for one user's active
// servers, plus the search_tools index over them.
type Catalog struct {
	handles []*ToolHandle
	byName  map[string]*ToolHandle
	index   *searchIndex
}

// Handles returns every realized tool, in the order they were built (not
// including the synthetic search_tools handle).
func (c *Catalog) Handles() []*ToolHandle {
	return c.handles
}

// Lookup finds a handle by its exposed name.
func (c *Catalog) Lookup(name string) (*ToolHandle, bool) {
	h, ok := c.byName[name]
	return h, ok
}
