package mcpconn

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolCacheSize bounds the process-wide tool-list cache. Unlike the
// teacher's per-process-lifetime map (one entry per server, of which there
// are a handful), this cache is keyed per-(server, token) across every
// tenant, so an unbounded map would grow with the user base.
const toolCacheSize = 2048

// ToolCache memoizes a server's advertised tool list per (server URL, token)
// pair, across all Connectors in the process. Keying on a token hash rather
// than the raw token means cache entries don't hold live credentials in
// memory any longer than the session already does, and two users sharing a
// server+token pair (e.g. an operator-wide API key) share one cache line.
type ToolCache struct {
	lru *lru.Cache[string, []*mcpsdk.Tool]
}

// NewToolCache constructs a bounded process-wide tool cache.
func NewToolCache() *ToolCache {
	c, err := lru.New[string, []*mcpsdk.Tool](toolCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which toolCacheSize
		// never is.
		panic(err)
	}
	return &ToolCache{lru: c}
}

func cacheKey(serverURL, token string) string {
	sum := sha256.Sum256([]byte(token))
	return serverURL + "#" + hex.EncodeToString(sum[:])
}

// Get returns the cached tool list for a (server, token) pair, if present.
func (c *ToolCache) Get(serverURL, token string) ([]*mcpsdk.Tool, bool) {
	return c.lru.Get(cacheKey(serverURL, token))
}

// Put stores a freshly-fetched tool list.
func (c *ToolCache) Put(serverURL, token string, tools []*mcpsdk.Tool) {
	c.lru.Add(cacheKey(serverURL, token), tools)
}

// Invalidate drops a cached tool list, e.g. after a token refresh changes
// which tools a server exposes.
func (c *ToolCache) Invalidate(serverURL, token string) {
	c.lru.Remove(cacheKey(serverURL, token))
}
