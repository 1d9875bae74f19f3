package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRegistry_CreateDedupesBySameInput(t *testing.T) {
	r := NewPendingRegistry()
	input := map[string]any{"path": "/tmp/x"}

	id1 := r.Create("user-1", "read_file", "fs", input)
	id2 := r.Create("user-1", "read_file", "fs", map[string]any{"path": "/tmp/x"})

	assert.Equal(t, id1, id2, "identical pending tool calls must dedupe to one approval")
}

func TestPendingRegistry_CreateDoesNotDedupeDifferentInput(t *testing.T) {
	r := NewPendingRegistry()
	id1 := r.Create("user-1", "read_file", "fs", map[string]any{"path": "/tmp/a"})
	id2 := r.Create("user-1", "read_file", "fs", map[string]any{"path": "/tmp/b"})
	assert.NotEqual(t, id1, id2)
}

func TestPendingRegistry_CreateDoesNotDedupeAfterDecision(t *testing.T) {
	r := NewPendingRegistry()
	input := map[string]any{"path": "/tmp/x"}
	id1 := r.Create("user-1", "read_file", "fs", input)
	require.True(t, r.Deny(id1))

	id2 := r.Create("user-1", "read_file", "fs", input)
	assert.NotEqual(t, id1, id2, "a resolved approval must not dedupe a fresh request for the same call")
}

func TestPendingRegistry_ApproveAndDeny(t *testing.T) {
	r := NewPendingRegistry()
	id := r.Create("user-1", "read_file", "fs", nil)

	assert.True(t, r.Approve(id, "always"))
	p, ok := r.Get(id)
	require.True(t, ok)
	require.NotNil(t, p.Approved)
	assert.True(t, *p.Approved)
	require.NotNil(t, p.ApprovalType)
	assert.Equal(t, "always", *p.ApprovalType)

	assert.False(t, r.Approve("does-not-exist", "once"))
	assert.False(t, r.Deny("does-not-exist"))
}

func TestPendingRegistry_RemoveAndGet(t *testing.T) {
	r := NewPendingRegistry()
	id := r.Create("user-1", "read_file", "fs", nil)
	r.Remove(id)
	_, ok := r.Get(id)
	assert.False(t, ok)
}

func TestPendingRegistry_PendingForUser(t *testing.T) {
	r := NewPendingRegistry()
	id1 := r.Create("user-1", "read_file", "fs", map[string]any{"a": 1})
	id2 := r.Create("user-1", "write_file", "fs", map[string]any{"a": 2})
	r.Create("user-2", "read_file", "fs", nil)
	require.True(t, r.Deny(id2))

	pending := r.PendingForUser("user-1")
	require.Len(t, pending, 1)
	assert.Equal(t, id1, pending[0].ID)
}
