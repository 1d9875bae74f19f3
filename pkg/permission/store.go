// Package permission implements the Permission Store (C4): per-tool enable/
// disable flags scoped to a user's server connection, standing tool-call
// approvals, and the in-memory PendingApproval registry gating review.
package permission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect/sql"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/ent/toolapproval"
	"github.com/tarsy-labs/agentgw/ent/toolpermission"
)

// approvalOnceTTL is how long a "once" approval remains valid before it must
// be re-requested, matching the original save_tool_approval's 1-hour window.
const approvalOnceTTL = time.Hour

// internalToolPrefix marks tools LangChain-style agent frameworks add
// internally (error-recovery pseudo-tools etc.) that are always allowed and
// never shown to the user for approval.
const internalToolPrefix = "_"

// Store is the persisted half of the Permission Store, backed by the
// ToolPermission and ToolApproval ent entities.
type Store struct {
	client *ent.Client
}

// NewStore wraps an ent client.
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// IsToolEnabled reports whether a tool is enabled for a user on a given
// server. Absence of a ToolPermission row defaults to enabled — the entity
// only ever records exceptions.
func (s *Store) IsToolEnabled(ctx context.Context, userID, serverID, toolName string) (bool, error) {
	perm, err := s.client.ToolPermission.Query().
		Where(
			toolpermission.UserID(userID),
			toolpermission.ServerID(serverID),
			toolpermission.ToolName(toolName),
		).
		Only(ctx)
	if ent.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query tool permission: %w", err)
	}
	return perm.IsEnabled, nil
}

// DisabledTools returns the set of tool names a user has explicitly
// disabled on a server, in one query — the batch form C3 uses instead of
// calling IsToolEnabled per tool. Absence from the returned set means
// enabled, same default as IsToolEnabled.
func (s *Store) DisabledTools(ctx context.Context, userID, serverID string) (map[string]bool, error) {
	rows, err := s.client.ToolPermission.Query().
		Where(
			toolpermission.UserID(userID),
			toolpermission.ServerID(serverID),
			toolpermission.IsEnabled(false),
		).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("query disabled tool permissions: %w", err)
	}
	disabled := make(map[string]bool, len(rows))
	for _, row := range rows {
		disabled[row.ToolName] = true
	}
	return disabled, nil
}

// SetToolEnabled upserts the ToolPermission row toggling a tool on or off.
func (s *Store) SetToolEnabled(ctx context.Context, userID, serverID, toolName string, enabled bool) error {
	existing, err := s.client.ToolPermission.Query().
		Where(
			toolpermission.UserID(userID),
			toolpermission.ServerID(serverID),
			toolpermission.ToolName(toolName),
		).
		Only(ctx)
	if err == nil {
		return existing.Update().SetIsEnabled(enabled).Exec(ctx)
	}
	if !ent.IsNotFound(err) {
		return fmt.Errorf("query tool permission: %w", err)
	}
	return s.client.ToolPermission.Create().
		SetUserID(userID).
		SetServerID(serverID).
		SetToolName(toolName).
		SetIsEnabled(enabled).
		OnConflict(
			sql.ConflictColumns(toolpermission.FieldUserID, toolpermission.FieldServerID, toolpermission.FieldToolName),
		).
		UpdateIsEnabled().
		Exec(ctx)
}

// IsToolApproved checks whether a user has a standing approval for a tool.
// Returns (needsApproval, approvalType): needsApproval is true unless an
// "always" row exists; approvalType is "always" or "never" when a standing
// decision exists, nil otherwise. Internal framework tools (prefixed "_")
// are always pre-approved.
func (s *Store) IsToolApproved(ctx context.Context, userID, toolName string) (needsApproval bool, approvalType *string, err error) {
	if strings.HasPrefix(toolName, internalToolPrefix) {
		always := "always"
		return false, &always, nil
	}

	approval, err := s.client.ToolApproval.Query().
		Where(toolapproval.UserID(userID), toolapproval.ToolName(toolName)).
		Only(ctx)
	if ent.IsNotFound(err) {
		return true, nil, nil
	}
	if err != nil {
		return true, nil, fmt.Errorf("query tool approval: %w", err)
	}

	if approval.ExpiresAt != nil && approval.ExpiresAt.Before(time.Now()) {
		if delErr := s.client.ToolApproval.DeleteOne(approval).Exec(ctx); delErr != nil {
			return true, nil, fmt.Errorf("delete expired tool approval: %w", delErr)
		}
		return true, nil, nil
	}

	switch approval.ApprovalType {
	case toolapproval.ApprovalTypeAlways:
		t := "always"
		return false, &t, nil
	case toolapproval.ApprovalTypeNever:
		t := "never"
		return true, &t, nil
	default: // "once" not yet expired still requires a fresh decision per call
		return true, nil, nil
	}
}

// SaveToolApproval upserts a user's standing approval decision. "once" rows
// get a 1-hour expiry; "always"/"never" never expire.
func (s *Store) SaveToolApproval(ctx context.Context, userID, toolName, approvalType string, serverName *string) error {
	var expiresAt *time.Time
	if approvalType == string(toolapproval.ApprovalTypeOnce) {
		t := time.Now().Add(approvalOnceTTL)
		expiresAt = &t
	}

	existing, err := s.client.ToolApproval.Query().
		Where(toolapproval.UserID(userID), toolapproval.ToolName(toolName)).
		Only(ctx)
	if err == nil {
		update := existing.Update().
			SetApprovalType(toolapproval.ApprovalType(approvalType)).
			SetCreatedAt(time.Now())
		if serverName != nil {
			update = update.SetServerName(*serverName)
		}
		if expiresAt != nil {
			update = update.SetExpiresAt(*expiresAt)
		} else {
			update = update.ClearExpiresAt()
		}
		return update.Exec(ctx)
	}
	if !ent.IsNotFound(err) {
		return fmt.Errorf("query tool approval: %w", err)
	}

	create := s.client.ToolApproval.Create().
		SetID(fmt.Sprintf("approval-%s-%s", userID, toolName)).
		SetUserID(userID).
		SetToolName(toolName).
		SetApprovalType(toolapproval.ApprovalType(approvalType))
	if serverName != nil {
		create = create.SetServerName(*serverName)
	}
	if expiresAt != nil {
		create = create.SetExpiresAt(*expiresAt)
	}
	return create.Exec(ctx)
}
