// Package approval implements the Approval Controller (C9): the thin
// write side that turns a user's approve/deny decision into a resolved
// PendingApproval, optionally upgrading it to a standing ToolApproval.
//
// It owns no state of its own; pkg/permission's PendingRegistry and Store
// already hold everything a decision touches. The controller's only job is
// ownership checking and sequencing those two calls.
package approval

import (
	"context"
	"fmt"

	"github.com/tarsy-labs/agentgw/pkg/permission"
)

// approvalStore is the slice of permission.Store the controller needs.
type approvalStore interface {
	SaveToolApproval(ctx context.Context, userID, toolName, approvalType string, serverName *string) error
}

var _ approvalStore = (*permission.Store)(nil)

// Controller resolves pending approvals raised by the agent graph's
// human_review node.
type Controller struct {
	Pending *permission.PendingRegistry
	Store   approvalStore
}

// New creates a Controller over the given pending registry and persisted
// approval store.
func New(pending *permission.PendingRegistry, store approvalStore) *Controller {
	return &Controller{Pending: pending, Store: store}
}

// ErrNotFound is returned when approvalID does not name a pending approval.
var ErrNotFound = fmt.Errorf("pending approval not found")

// ErrNotOwner is returned when the pending approval belongs to a different
// user than the caller.
var ErrNotOwner = fmt.Errorf("pending approval belongs to another user")

// Decide records a user's approve/deny decision for one pending tool call.
// On approval with approvalType == "always", the decision is also
// persisted as a standing ToolApproval so future calls to the same tool
// skip the gate entirely. Either way the PendingApproval record itself is
// left in place — marked approved or denied — until the graph's
// human_review node reads and removes it on the next resume.
func (c *Controller) Decide(ctx context.Context, userID, approvalID string, approved bool, approvalType *string) error {
	p, ok := c.Pending.Get(approvalID)
	if !ok {
		return ErrNotFound
	}
	if p.UserID != userID {
		return ErrNotOwner
	}

	if !approved {
		c.Pending.Deny(approvalID)
		return nil
	}

	decidedType := "once"
	if approvalType != nil {
		decidedType = *approvalType
	}
	c.Pending.Approve(approvalID, decidedType)

	if decidedType == "always" {
		serverName := p.ServerName
		if err := c.Store.SaveToolApproval(ctx, userID, p.ToolName, decidedType, &serverName); err != nil {
			return fmt.Errorf("save standing tool approval: %w", err)
		}
	}
	return nil
}
