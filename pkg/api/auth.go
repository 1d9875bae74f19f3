package api

import (
	echo "github.com/labstack/echo/v5"
)

// extractUserID resolves the caller's identity from the reverse proxy's
// headers. Priority: X-Forwarded-User > X-Forwarded-Email > X-Remote-User
// (set by kube-rbac-proxy for in-cluster service account callers) >
// "api-client". Authentication itself is out of this gateway's scope; it
// trusts whatever identity-asserting proxy fronts it.
func extractUserID(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.Request().Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return "api-client"
}
