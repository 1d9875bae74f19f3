package permission

import (
	"context"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tarsy-labs/agentgw/ent"
)

// newTestClient creates an ent client against a throwaway Postgres container,
// same pattern as pkg/database's newTestClient.
func newTestClient(t *testing.T) *ent.Client {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	drv, err := sql.Open(dialect.Postgres, connStr)
	require.NoError(t, err)

	client := ent.NewClient(ent.Driver(drv))
	require.NoError(t, client.Schema.Create(ctx))
	t.Cleanup(func() { client.Close() })

	return client
}

func TestStore_IsToolEnabled_DefaultsToTrue(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)
	_, err = client.McpServerConfig.Create().
		SetID("srv-1").SetUserID("user-1").SetServerName("fs").SetEndpoint("stdio://fs").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	enabled, err := store.IsToolEnabled(ctx, "user-1", "srv-1", "read_file")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStore_SetToolEnabled_RoundTrips(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)
	_, err = client.McpServerConfig.Create().
		SetID("srv-1").SetUserID("user-1").SetServerName("fs").SetEndpoint("stdio://fs").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	require.NoError(t, store.SetToolEnabled(ctx, "user-1", "srv-1", "delete_file", false))

	enabled, err := store.IsToolEnabled(ctx, "user-1", "srv-1", "delete_file")
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.SetToolEnabled(ctx, "user-1", "srv-1", "delete_file", true))
	enabled, err = store.IsToolEnabled(ctx, "user-1", "srv-1", "delete_file")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestStore_IsToolApproved_NoRowNeedsApproval(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "delete_file")
	require.NoError(t, err)
	assert.True(t, needsApproval)
	assert.Nil(t, approvalType)
}

func TestStore_IsToolApproved_InternalToolAlwaysApproved(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "_Exception")
	require.NoError(t, err)
	assert.False(t, needsApproval)
	require.NotNil(t, approvalType)
	assert.Equal(t, "always", *approvalType)
}

func TestStore_SaveToolApproval_AlwaysNeverNeedsApprovalAgain(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	require.NoError(t, store.SaveToolApproval(ctx, "user-1", "send_email", "always", nil))

	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "send_email")
	require.NoError(t, err)
	assert.False(t, needsApproval)
	require.NotNil(t, approvalType)
	assert.Equal(t, "always", *approvalType)
}

func TestStore_SaveToolApproval_NeverAlwaysDenies(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	require.NoError(t, store.SaveToolApproval(ctx, "user-1", "wipe_disk", "never", nil))

	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "wipe_disk")
	require.NoError(t, err)
	assert.True(t, needsApproval)
	require.NotNil(t, approvalType)
	assert.Equal(t, "never", *approvalType)
}

func TestStore_SaveToolApproval_OnceExpiresAndIsDeleted(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	require.NoError(t, store.SaveToolApproval(ctx, "user-1", "run_script", "once", nil))

	// Force the row into the past to simulate elapsed time without sleeping.
	_, err = client.ToolApproval.Update().
		Where().
		SetExpiresAt(time.Now().Add(-time.Minute)).
		Save(ctx)
	require.NoError(t, err)

	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "run_script")
	require.NoError(t, err)
	assert.True(t, needsApproval)
	assert.Nil(t, approvalType)

	count, err := client.ToolApproval.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "expired once-approval should be deleted on read")
}

func TestStore_SaveToolApproval_UpsertsExisting(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	_, err := client.User.Create().SetID("user-1").Save(ctx)
	require.NoError(t, err)

	store := NewStore(client)
	require.NoError(t, store.SaveToolApproval(ctx, "user-1", "send_email", "once", nil))
	require.NoError(t, store.SaveToolApproval(ctx, "user-1", "send_email", "always", nil))

	count, err := client.ToolApproval.Query().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a second save for the same (user, tool) must update, not insert")

	needsApproval, approvalType, err := store.IsToolApproved(ctx, "user-1", "send_email")
	require.NoError(t, err)
	assert.False(t, needsApproval)
	assert.Equal(t, "always", *approvalType)
}
