// Package oauthcreds is the Token Manager (C1): it decides whether stored
// MCP server credentials are usable and, if not, performs the refresh-grant
// exchange. It also carries the MCP "Smart Auth" discovery flow and PKCE
// generation needed by the OAuth authorization-code flow that registers a
// server in the first place.
package oauthcreds

import "time"

// TokenRefreshBuffer is the skew window before expiry at which a token is
// already considered stale enough to refresh proactively.
const TokenRefreshBuffer = 300 * time.Second

// Credentials mirrors the JSON blob stored on McpServerConfig.credentials.
// ExpiresAt is a Unix timestamp (seconds), matching the original Python
// prototype's convention, so it round-trips through ent's JSON field without
// a custom (un)marshaler.
type Credentials struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresAt    *int64       `json:"expires_at,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	OAuthConfig  *OAuthConfig `json:"oauth_config,omitempty"`
}

// OAuthConfig carries the minimum needed to perform a refresh (or a fresh
// authorization-code exchange) without any external lookup.
type OAuthConfig struct {
	ClientID          string `json:"client_id"`
	ClientSecret      string `json:"client_secret,omitempty"`
	TokenURL          string `json:"token_url"`
	AuthorizationURL  string `json:"authorization_url,omitempty"`
	Scope             string `json:"scope,omitempty"`
}

// Metadata is OAuth 2.0 Authorization Server Metadata (RFC 8414) / OIDC
// discovery document, trimmed to the fields the gateway actually consumes.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// AuthChallenge is the parsed content of a 401 response's WWW-Authenticate
// header, per RFC 9728 / MCP Smart Auth.
type AuthChallenge struct {
	Scheme               string
	Realm                string
	ResourceMetadataURL  string
	Scope                string
	Error                string
	ErrorDescription     string
}

// PKCEChallenge is a generated PKCE verifier/challenge pair (RFC 7636, S256
// only — OAuth 2.1 no longer permits the "plain" method).
type PKCEChallenge struct {
	CodeVerifier        string
	CodeChallenge        string
	CodeChallengeMethod string
}

// tokenResponse is the shape of a token-endpoint response body, common to
// both the authorization_code and refresh_token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}
