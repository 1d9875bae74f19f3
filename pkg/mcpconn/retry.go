package mcpconn

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// RecoveryAction determines how RunTool handles an MCP
// operation failure: an auth class distinguishes "credentials are stale"
// from "transport is broken" so only the former triggers a token refresh.
type RecoveryAction int

const (
	// NoRetry — the error is not recoverable (bad request, protocol error,
	// explicit cancellation).
	NoRetry RecoveryAction = iota
	// RetryNewSession — transport failure or timeout, recreate session and
	// retry once.
	RetryNewSession
	// RetryAfterTokenRefresh — the server rejected the call as unauthenticated;
	// force a token refresh and retry once before escalating to
	// RequiresAuthenticationError.
	RetryAfterTokenRefresh
)

// Recovery configuration constants.
const (
	MaxRetries       = 1
	ReinitTimeout    = 10 * time.Second
	OperationTimeout = 60 * time.Second
	RetryBackoffMin  = 250 * time.Millisecond
	RetryBackoffMax  = 750 * time.Millisecond
	MCPInitTimeout   = 30 * time.Second
)

// ClassifyError determines the recovery action for an MCP operation error.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	if errors.Is(err, context.Canceled) {
		return NoRetry
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryNewSession
	}

	if isAuthError(err) {
		return RetryAfterTokenRefresh
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// Timeout or not, a net.Error means the transport is broken:
		// recreate the session and retry once.
		return RetryNewSession
	}

	if isConnectionError(err) {
		return RetryNewSession
	}

	if isMCPProtocolError(err) {
		return NoRetry
	}

	return NoRetry
}

// isAuthError detects that an MCP call failed because the access token was
// rejected by the upstream server, by matching 401/403 and auth wording in
// the error's message (the streamable-HTTP/SSE transports don't always
// surface a typed status). Tool results are not inspected.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"401", "403", "unauthorized", "unauthenticated", "authentication failed", "invalid_token", "invalid token"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// isConnectionError detects connection-level transport failures.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, e := range []string{
		"connection refused", "connection reset", "broken pipe", "connection closed", "no such host",
		"timed out", "temporarily unavailable", "network unreachable",
	} {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

// isMCPProtocolError detects MCP JSON-RPC protocol errors from the SDK.
func isMCPProtocolError(err error) bool {
	var wireErr *jsonrpc.Error
	if !errors.As(err, &wireErr) {
		return false
	}
	switch wireErr.Code {
	case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, jsonrpc.CodeMethodNotFound, jsonrpc.CodeInvalidParams:
		return true
	default:
		return false
	}
}
