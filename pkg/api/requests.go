package api

// StreamRequest is the HTTP request body for POST /api/v1/threads/:thread_id/stream.
// ModelProvider/Model select the LLM for this turn; both empty falls back to
// the sidecar's configured default. Changing either from a prior turn on the
// same thread is a fingerprint-affecting change — see agentcache.FingerprintInput.
type StreamRequest struct {
	Message       string `json:"message,omitempty"` // empty when resuming a parked thread
	Resume        bool   `json:"resume,omitempty"`
	ModelProvider string `json:"model_provider,omitempty"`
	Model         string `json:"model,omitempty"`
}

// DecideApprovalRequest is the HTTP request body for POST /api/v1/approvals/:approval_id.
type DecideApprovalRequest struct {
	Approved     bool    `json:"approved"`
	ApprovalType *string `json:"approval_type,omitempty"` // "once" or "always"
}

// RegisterServerRequest is the HTTP request body for POST /api/v1/mcp-servers
// (manual registration, no OAuth dance).
type RegisterServerRequest struct {
	ServerName  string `json:"server_name"`
	Endpoint    string `json:"endpoint"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// StartOAuthRequest is the HTTP request body for POST /api/v1/mcp-servers/oauth/start.
// There is no dynamic client registration: the caller must already have
// registered an OAuth application with the provider and supplies its
// client_id here, same as the original settings UI required.
type StartOAuthRequest struct {
	ServerName       string  `json:"server_name"`
	ServerURL        string  `json:"server_url"`
	RedirectURI      string  `json:"redirect_uri"`
	ClientID         string  `json:"client_id"`
	ClientSecret     string  `json:"client_secret,omitempty"`
	Scope            string  `json:"scope,omitempty"`
	AuthorizationURL string  `json:"authorization_url,omitempty"` // manual override of discovery
	TokenURL         string  `json:"token_url,omitempty"`         // manual override of discovery
	SettingID        *string `json:"setting_id,omitempty"`        // set to update an existing server
}

// FinalizeOAuthRequest is the HTTP request body for POST /api/v1/mcp-servers/oauth/finalize.
type FinalizeOAuthRequest struct {
	State string `json:"state"`
	Code  string `json:"code"`
}

// SetToolPermissionRequest is the HTTP request body for
// PUT /api/v1/mcp-servers/:server_id/tools/:tool_name.
type SetToolPermissionRequest struct {
	Enabled bool `json:"enabled"`
}
