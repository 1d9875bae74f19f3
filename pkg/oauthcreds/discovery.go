package oauthcreds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// metadataCacheTTL bounds how long a discovered metadata document is reused
// before a fresh discovery round is attempted, mirroring the muster OAuth
// client's cache TTL.
const metadataCacheTTL = 30 * time.Minute

const discoveryHTTPTimeout = 15 * time.Second

// protectedResourceMetadata is RFC 9728's protected-resource metadata
// document — the thing resource_metadata in a 401's WWW-Authenticate header
// points at.
type protectedResourceMetadata struct {
	Resource            string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
}

type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Discoverer performs MCP "Smart Auth" OAuth metadata discovery: it probes
// an MCP server with a dummy initialize call, follows the 401's
// WWW-Authenticate challenge to the protected-resource metadata, and
// resolves each candidate authorization server's RFC 8414 / OIDC document.
// Concurrent discoveries for the same server are deduplicated with
// singleflight, as muster's pkg/oauth.Client.DiscoverMetadata does.
type Discoverer struct {
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]*metadataCacheEntry

	group singleflight.Group
}

// NewDiscoverer creates a Discoverer with a sensible default HTTP client.
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		httpClient: &http.Client{Timeout: discoveryHTTPTimeout},
		cache:      make(map[string]*metadataCacheEntry),
	}
}

// DiscoverMetadata resolves authorization_endpoint/token_endpoint for an MCP
// server's Smart Auth flow.
func (d *Discoverer) DiscoverMetadata(ctx context.Context, serverURL string) (*Metadata, error) {
	serverURL = strings.TrimSuffix(serverURL, "/")

	if m := d.cached(serverURL); m != nil {
		return m, nil
	}

	result, err, _ := d.group.Do(serverURL, func() (interface{}, error) {
		if m := d.cached(serverURL); m != nil {
			return m, nil
		}
		return d.discover(ctx, serverURL)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (d *Discoverer) cached(serverURL string) *Metadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.cache[serverURL]
	if !ok || time.Since(entry.fetchedAt) >= metadataCacheTTL {
		return nil
	}
	return entry.metadata
}

func (d *Discoverer) store(serverURL string, m *Metadata) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[serverURL] = &metadataCacheEntry{metadata: m, fetchedAt: time.Now()}
}

func (d *Discoverer) discover(ctx context.Context, serverURL string) (*Metadata, error) {
	challenge := d.probeInitialize(ctx, serverURL)
	if challenge != nil && challenge.ResourceMetadataURL != "" {
		if m, err := d.discoverViaResourceMetadata(ctx, challenge.ResourceMetadataURL); err == nil {
			d.store(serverURL, m)
			return m, nil
		}
	}

	m, err := d.discoverWellKnown(ctx, serverURL)
	if err != nil {
		return nil, fmt.Errorf("discover oauth metadata for %s: %w", serverURL, err)
	}
	d.store(serverURL, m)
	return m, nil
}

// probeInitialize POSTs a dummy JSON-RPC "initialize" request and returns
// the parsed WWW-Authenticate challenge from a 401 response, or nil if the
// server didn't challenge (or the probe itself failed — discovery falls
// back to well-known documents either way).
func (d *Discoverer) probeInitialize(ctx context.Context, serverURL string) *AuthChallenge {
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	return ParseWWWAuthenticateFromResponse(resp)
}

// discoverViaResourceMetadata fetches the RFC 9728 protected-resource
// metadata document and resolves the first authorization server listed
// there via its own well-known document.
func (d *Discoverer) discoverViaResourceMetadata(ctx context.Context, resourceMetadataURL string) (*Metadata, error) {
	prm, err := fetchJSON[protectedResourceMetadata](ctx, d.httpClient, resourceMetadataURL)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, issuer := range prm.AuthorizationServers {
		m, err := d.discoverWellKnown(ctx, strings.TrimSuffix(issuer, "/"))
		if err == nil {
			return m, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("protected resource metadata listed no authorization_servers")
	}
	return nil, lastErr
}

// discoverWellKnown tries RFC 8414 first, then OIDC discovery, against the
// issuer's base URL.
func (d *Discoverer) discoverWellKnown(ctx context.Context, issuer string) (*Metadata, error) {
	m, err := fetchJSON[Metadata](ctx, d.httpClient, issuer+"/.well-known/oauth-authorization-server")
	if err == nil {
		return m, nil
	}

	m, err2 := fetchJSON[Metadata](ctx, d.httpClient, issuer+"/.well-known/openid-configuration")
	if err2 == nil {
		return m, nil
	}
	return nil, fmt.Errorf("rfc8414 discovery failed (%v), oidc discovery failed (%w)", err, err2)
}

func fetchJSON[T any](ctx context.Context, client *http.Client, url string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return &out, nil
}
