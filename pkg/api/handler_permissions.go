package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listToolPermissionsHandler handles GET /api/v1/mcp-servers/:server_id/tools:
// the server's cached tool manifest, each marked enabled unless the user has
// explicitly disabled it. A tool absent from ToolPermission is enabled by
// default, matching toolfactory.Build's own treatment of missing rows.
func (s *Server) listToolPermissionsHandler(c *echo.Context) error {
	userID := extractUserID(c)
	serverID := c.Param("server_id")
	ctx := c.Request().Context()

	cfg, err := s.entc.McpServerConfig.Get(ctx, serverID)
	if err != nil {
		return mapServiceError(err)
	}
	if cfg.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "server belongs to another user")
	}

	tools, err := decodeManifest(cfg.ToolsManifest)
	if err != nil {
		return mapServiceError(err)
	}
	disabled, err := s.permissions.DisabledTools(ctx, userID, serverID)
	if err != nil {
		return mapServiceError(err)
	}

	out := make([]*ToolPermissionResponse, 0, len(tools))
	for _, t := range tools {
		out = append(out, &ToolPermissionResponse{
			ToolName: t.Name,
			Enabled:  !disabled[t.Name],
		})
	}
	return c.JSON(http.StatusOK, out)
}

// setToolPermissionHandler handles
// PUT /api/v1/mcp-servers/:server_id/tools/:tool_name: flips the per-user,
// per-tool enable switch and invalidates the cached catalog so the next
// turn picks up the change.
func (s *Server) setToolPermissionHandler(c *echo.Context) error {
	userID := extractUserID(c)
	serverID := c.Param("server_id")
	toolName := c.Param("tool_name")
	ctx := c.Request().Context()

	cfg, err := s.entc.McpServerConfig.Get(ctx, serverID)
	if err != nil {
		return mapServiceError(err)
	}
	if cfg.UserID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "server belongs to another user")
	}

	var req SetToolPermissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.permissions.SetToolEnabled(ctx, userID, serverID, toolName, req.Enabled); err != nil {
		return mapServiceError(err)
	}
	s.catalogs.Invalidate(userID)

	return c.JSON(http.StatusOK, &ToolPermissionResponse{
		ToolName: toolName,
		Enabled:  req.Enabled,
	})
}
