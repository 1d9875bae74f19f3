package oauthcreds

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// ParseWWWAuthenticate parses a WWW-Authenticate header into an
// AuthChallenge. MCP's Smart Auth discovery relies on the
// resource_metadata parameter introduced by RFC 9728.
//
// Example: `Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	challenge := &AuthChallenge{Scheme: parts[0]}

	if len(parts) > 1 {
		params := parseAuthParams(parts[1])
		challenge.Realm = params["realm"]
		challenge.ResourceMetadataURL = params["resource_metadata"]
		challenge.Scope = params["scope"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
	}

	return challenge, nil
}

var authParamRegexp = regexp.MustCompile(`(\w+)="([^"]*)"`)

func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)
	for _, m := range authParamRegexp.FindAllStringSubmatch(paramStr, -1) {
		params[strings.ToLower(m[1])] = m[2]
	}
	return params
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401
// response, returning nil if none is present.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}
	header := resp.Header.Get("WWW-Authenticate")
	if header == "" {
		return nil
	}
	challenge, err := ParseWWWAuthenticate(header)
	if err != nil {
		return nil
	}
	return challenge
}
