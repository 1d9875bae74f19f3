package api

import (
	"context"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/agentgw/pkg/approval"
	"github.com/tarsy-labs/agentgw/pkg/permission"
)

// noopApprovalStore satisfies approval.Controller's store dependency without
// needing a real permission.Store/ent.Client for handler-level tests that
// never exercise the "always" persistence path.
type noopApprovalStore struct{}

func (noopApprovalStore) SaveToolApproval(ctx context.Context, userID, toolName, approvalType string, serverName *string) error {
	return nil
}

func TestDecideApprovalHandler_ApproveOnce(t *testing.T) {
	e := echo.New()
	pending := permission.NewPendingRegistry()
	id := pending.Create("user-1", "delete_file", "fs", map[string]any{"path": "/tmp/x"})

	s := &Server{
		pending:   pending,
		approvals: approval.New(pending, noopApprovalStore{}),
	}

	c, rec := newJSONContext(t, e, http.MethodPost, "/api/v1/approvals/"+id, DecideApprovalRequest{Approved: true})
	c.Request().Header.Set("X-Forwarded-User", "user-1")
	c.SetParamNames("approval_id")
	c.SetParamValues(id)

	require.NoError(t, s.decideApprovalHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	p, ok := pending.Get(id)
	require.True(t, ok)
	require.NotNil(t, p.Approved)
	assert.True(t, *p.Approved)
}

func TestDecideApprovalHandler_UnknownIDMapsTo404(t *testing.T) {
	e := echo.New()
	pending := permission.NewPendingRegistry()
	s := &Server{
		pending:   pending,
		approvals: approval.New(pending, noopApprovalStore{}),
	}

	c, _ := newJSONContext(t, e, http.MethodPost, "/api/v1/approvals/missing", DecideApprovalRequest{Approved: true})
	c.Request().Header.Set("X-Forwarded-User", "user-1")
	c.SetParamNames("approval_id")
	c.SetParamValues("missing")

	err := s.decideApprovalHandler(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Code)
}
