package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// decideApprovalHandler handles POST /api/v1/approvals/:approval_id. The
// decision is recorded but not acted on here: the caller must re-issue the
// thread's stream request with resume=true to drive the graph past
// human_review with the decision applied.
func (s *Server) decideApprovalHandler(c *echo.Context) error {
	approvalID := c.Param("approval_id")
	if approvalID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "approval_id is required")
	}
	userID := extractUserID(c)

	var req DecideApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.approvals.Decide(c.Request().Context(), userID, approvalID, req.Approved, req.ApprovalType); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &DecideApprovalResponse{
		ApprovalID: approvalID,
		Approved:   req.Approved,
	})
}
