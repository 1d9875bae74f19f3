package permission

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingApproval is a tool call gated on human review, held in memory for
// the lifetime of the decision: created when the agent graph routes to
// human_review, resolved by the Approval Controller, and removed once the
// graph reads the decision on resume.
type PendingApproval struct {
	ID           string
	UserID       string
	ToolName     string
	ServerName   string
	ToolInput    map[string]any
	Approved     *bool // nil = pending, true = approved, false = denied
	ApprovalType *string
	CreatedAt    time.Time
}

// PendingRegistry is the process-wide PendingApproval store. Scans are O(n)
// but n is bounded by the number of concurrently gated tool calls across all
// users, never by conversation history.
type PendingRegistry struct {
	mu      sync.Mutex
	pending map[string]*PendingApproval
}

// NewPendingRegistry creates an empty registry.
func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{pending: make(map[string]*PendingApproval)}
}

// Create registers a new pending approval, deduplicating against any
// still-pending (Approved == nil) entry for the same (user, tool, input) —
// a retried or duplicated tool call refreshes the existing entry's
// CreatedAt instead of spawning a second approval prompt.
func (r *PendingRegistry) Create(userID, toolName, serverName string, toolInput map[string]any) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.pending {
		if p.Approved == nil && p.UserID == userID && p.ToolName == toolName && reflect.DeepEqual(p.ToolInput, toolInput) {
			p.CreatedAt = time.Now()
			return id
		}
	}

	id := uuid.NewString()
	r.pending[id] = &PendingApproval{
		ID:         id,
		UserID:     userID,
		ToolName:   toolName,
		ServerName: serverName,
		ToolInput:  toolInput,
		CreatedAt:  time.Now(),
	}
	return id
}

// Get returns a pending approval by ID.
func (r *PendingRegistry) Get(id string) (*PendingApproval, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

// Approve marks a pending approval as approved with the given approval type
// ("once" or "always"). Reports whether the ID was found.
func (r *PendingRegistry) Approve(id, approvalType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return false
	}
	approved := true
	p.Approved = &approved
	p.ApprovalType = &approvalType
	return true
}

// Deny marks a pending approval as denied. Reports whether the ID was found.
func (r *PendingRegistry) Deny(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if !ok {
		return false
	}
	denied := false
	p.Approved = &denied
	return true
}

// Remove deletes a pending approval once the graph has consumed its decision.
func (r *PendingRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

// FindByUserAndTool returns the pending approval (decided or not) for a
// (user, tool) pair, the lookup human_review uses to check a gated tool
// call's decision without knowing its approval ID.
func (r *PendingRegistry) FindByUserAndTool(userID, toolName string) (*PendingApproval, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pending {
		if p.UserID == userID && p.ToolName == toolName {
			return p, true
		}
	}
	return nil, false
}

// PendingForUser returns every still-undecided approval owned by userID, for
// the event streamer's post-loop interrupt sweep.
func (r *PendingRegistry) PendingForUser(userID string) []*PendingApproval {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PendingApproval
	for _, p := range r.pending {
		if p.UserID == userID && p.Approved == nil {
			out = append(out, p)
		}
	}
	return out
}
