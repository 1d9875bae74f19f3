package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/pkg/approval"
	"github.com/tarsy-labs/agentgw/pkg/mcpconn"
)

// mapServiceError maps domain-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	if ent.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, approval.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "pending approval not found")
	}
	if errors.Is(err, approval.ErrNotOwner) {
		return echo.NewHTTPError(http.StatusForbidden, "pending approval belongs to another user")
	}
	var authErr *mcpconn.RequiresAuthenticationError
	if errors.As(err, &authErr) {
		return echo.NewHTTPError(http.StatusUnauthorized, authErr.Error())
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
