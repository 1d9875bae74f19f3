package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// McpServerConfig holds the schema definition for a user's registered MCP
// server. Credentials embed enough of the OAuth config to refresh without
// any external lookup (see pkg/oauthcreds).
type McpServerConfig struct {
	ent.Schema
}

// Fields of the McpServerConfig.
func (McpServerConfig) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("server_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("server_name"),
		field.String("endpoint").
			Comment("Server base URL"),
		field.Bool("is_active").
			Default(true),
		field.JSON("credentials", map[string]interface{}{}).
			Optional().
			Sensitive().
			Comment("access_token, refresh_token, expires_at, token_type, oauth_config"),
		field.JSON("tools_manifest", []map[string]interface{}{}).
			Optional().
			Comment("Cached tool manifest from the last successful ListTools"),
		field.Time("last_synced_at").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the McpServerConfig.
func (McpServerConfig) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).
			Ref("mcp_servers").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
		edge.To("tool_permissions", ToolPermission.Type),
	}
}

// Indexes of the McpServerConfig.
func (McpServerConfig) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "server_name").
			Unique(),
		index.Fields("user_id", "is_active"),
	}
}
