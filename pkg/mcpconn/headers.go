package mcpconn

import "strings"

// buildHeaders derives per-server HTTP headers from a bearer token, matching
// the handful of MCP servers that don't speak plain "Authorization: Bearer"
// verbatim. Detection is by substring on the server URL, not the configured
// server name, same as the original connector.
func buildHeaders(serverURL, token string) map[string]string {
	if token == "" {
		return map[string]string{}
	}

	switch {
	case strings.Contains(serverURL, "figma.com"):
		return map[string]string{"X-Figma-Token": token}
	case strings.Contains(serverURL, "notion.com"):
		return map[string]string{
			"Authorization":  "Bearer " + token,
			"Notion-Version": "2022-06-28",
		}
	default:
		return map[string]string{"Authorization": "Bearer " + token}
	}
}
