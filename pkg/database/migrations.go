package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates PostgreSQL GIN indexes that ent's schema DSL has
// no tag for. Called once after migrations apply.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	// Lets "which servers expose tool X" queries (manifest refresh diffing,
	// admin tooling) use the index instead of scanning every manifest.
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_mcp_server_configs_tools_manifest_gin
		ON mcp_server_configs USING gin(tools_manifest)`)
	if err != nil {
		return fmt.Errorf("failed to create tools_manifest GIN index: %w", err)
	}

	return nil
}
