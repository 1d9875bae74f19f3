package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/agentgw/pkg/permission"
)

type fakeApprovalStore struct {
	saved    bool
	userID   string
	toolName string
	apType   string
}

func (f *fakeApprovalStore) SaveToolApproval(ctx context.Context, userID, toolName, approvalType string, serverName *string) error {
	f.saved = true
	f.userID = userID
	f.toolName = toolName
	f.apType = approvalType
	return nil
}

func TestController_Decide_ApproveOnceDoesNotPersistStandingApproval(t *testing.T) {
	pending := permission.NewPendingRegistry()
	id := pending.Create("user-1", "fs_delete", "srv", nil)
	store := &fakeApprovalStore{}
	c := New(pending, store)

	once := "once"
	err := c.Decide(context.Background(), "user-1", id, true, &once)
	require.NoError(t, err)

	p, _ := pending.Get(id)
	require.NotNil(t, p.Approved)
	assert.True(t, *p.Approved)
	assert.False(t, store.saved)
}

func TestController_Decide_ApproveAlwaysPersistsStandingApproval(t *testing.T) {
	pending := permission.NewPendingRegistry()
	id := pending.Create("user-1", "fs_delete", "srv", nil)
	store := &fakeApprovalStore{}
	c := New(pending, store)

	always := "always"
	err := c.Decide(context.Background(), "user-1", id, true, &always)
	require.NoError(t, err)

	assert.True(t, store.saved)
	assert.Equal(t, "fs_delete", store.toolName)
	assert.Equal(t, "always", store.apType)
}

func TestController_Decide_DenyMarksDeniedAndSkipsStore(t *testing.T) {
	pending := permission.NewPendingRegistry()
	id := pending.Create("user-1", "fs_delete", "srv", nil)
	store := &fakeApprovalStore{}
	c := New(pending, store)

	err := c.Decide(context.Background(), "user-1", id, false, nil)
	require.NoError(t, err)

	p, _ := pending.Get(id)
	require.NotNil(t, p.Approved)
	assert.False(t, *p.Approved)
	assert.False(t, store.saved)
}

func TestController_Decide_UnknownApprovalIDErrors(t *testing.T) {
	c := New(permission.NewPendingRegistry(), &fakeApprovalStore{})
	err := c.Decide(context.Background(), "user-1", "missing", true, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestController_Decide_WrongOwnerErrors(t *testing.T) {
	pending := permission.NewPendingRegistry()
	id := pending.Create("user-1", "fs_delete", "srv", nil)
	c := New(pending, &fakeApprovalStore{})

	err := c.Decide(context.Background(), "user-2", id, true, nil)
	assert.ErrorIs(t, err, ErrNotOwner)

	p, _ := pending.Get(id)
	assert.Nil(t, p.Approved, "a denied-owner decision must not mutate the record")
}
