package oauthcreds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const refreshHTTPTimeout = 30 * time.Second

// defaultExpiresIn is substituted when a token response omits expires_in,
// matching the original Python's refresh_oauth_token default.
const defaultExpiresIn = int64(3600)

// TokenManager is the Token Manager (C1): it decides whether stored
// credentials are usable and performs the refresh-grant exchange when
// they're not.
type TokenManager struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTokenManager creates a TokenManager with structured logging
// (slog.Default, structured fields).
func NewTokenManager() *TokenManager {
	return &TokenManager{
		httpClient: &http.Client{Timeout: refreshHTTPTimeout},
		logger:     slog.Default(),
	}
}

// IsExpired reports whether creds are expired or within the 5-minute skew
// buffer of expiring. Missing expiry is treated as valid — the call will
// fail naturally if the token actually isn't.
func IsExpired(creds *Credentials) bool {
	if creds == nil || creds.ExpiresAt == nil {
		return false
	}
	now := time.Now().Unix()
	return now >= (*creds.ExpiresAt - int64(TokenRefreshBuffer.Seconds()))
}

// Refresh performs a refresh_token grant exchange against oauthCfg.TokenURL.
// On success it returns credentials with a new access token and expiry,
// preserving the refresh token if the provider didn't rotate it, and always
// carrying oauthCfg forward so a later refresh never needs re-discovery. On
// any failure (HTTP error, non-200, timeout) it returns a nil *Credentials
// and a non-nil error; callers treat that as "refresh failed" and fall back
// to signaling that re-authentication is required.
func (m *TokenManager) Refresh(ctx context.Context, serverName string, creds *Credentials, oauthCfg *OAuthConfig) (*Credentials, error) {
	if creds == nil || creds.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh_token available for %s", serverName)
	}
	if oauthCfg == nil || oauthCfg.TokenURL == "" {
		return nil, fmt.Errorf("no token_url configured for %s", serverName)
	}
	if oauthCfg.ClientID == "" {
		return nil, fmt.Errorf("no client_id configured for %s", serverName)
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {creds.RefreshToken},
	}

	m.logger.Info("refreshing oauth token", "server", serverName)

	tok, err := m.doTokenRequest(ctx, oauthCfg.TokenURL, data, oauthCfg.ClientID, oauthCfg.ClientSecret)
	if err != nil {
		m.logger.Error("token refresh failed", "server", serverName, "error", err)
		return nil, err
	}

	expiresIn := defaultExpiresIn
	if tok.ExpiresIn != nil {
		expiresIn = *tok.ExpiresIn
	}
	expiresAt := time.Now().Unix() + expiresIn

	refreshToken := tok.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	m.logger.Info("refreshed oauth token", "server", serverName)
	return &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		TokenType:    tokenType,
		OAuthConfig:  oauthCfg,
	}, nil
}

// ExchangeCode performs the authorization_code grant exchange for the OAuth
// finalize request, using the PKCE code_verifier captured at
// authorization-URL-issue time.
func (m *TokenManager) ExchangeCode(ctx context.Context, oauthCfg *OAuthConfig, code, redirectURI, codeVerifier string) (*Credentials, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	if oauthCfg.ClientSecret == "" {
		data.Set("client_id", oauthCfg.ClientID)
	}

	tok, err := m.doTokenRequest(ctx, oauthCfg.TokenURL, data, oauthCfg.ClientID, oauthCfg.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	expiresIn := defaultExpiresIn
	if tok.ExpiresIn != nil {
		expiresIn = *tok.ExpiresIn
	}
	expiresAt := time.Now().Unix() + expiresIn
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    &expiresAt,
		TokenType:    tokenType,
		OAuthConfig:  oauthCfg,
	}, nil
}

// BuildAuthorizationURL constructs the authorization-code request URL, with
// PKCE parameters when pkce is non-nil.
func BuildAuthorizationURL(authEndpoint, clientID, redirectURI, state, scope string, pkce *PKCEChallenge) (string, error) {
	u, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	if scope != "" {
		q.Set("scope", scope)
	}
	if pkce != nil {
		q.Set("code_challenge", pkce.CodeChallenge)
		q.Set("code_challenge_method", pkce.CodeChallengeMethod)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// doTokenRequest POSTs a token-endpoint request, using HTTP Basic auth when
// clientSecret is non-empty and a plain body otherwise.
func (m *TokenManager) doTokenRequest(ctx context.Context, tokenURL string, data url.Values, clientID, clientSecret string) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if clientSecret != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	return &tok, nil
}
