package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
)

// User holds the schema definition for the User entity.
// Owns every per-tenant object in the gateway: server configs, tool
// permissions, tool approvals, checkpoints, and conversations.
type User struct {
	ent.Schema
}

// Fields of the User.
func (User) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("user_id").
			Unique().
			Immutable(),
		field.String("username").
			Optional().
			Nillable(),
		field.String("email").
			Optional().
			Nillable(),
		field.String("password_hash").
			Optional().
			Nillable().
			Sensitive(),
		field.Bool("is_guest").
			Default(false),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the User.
func (User) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("mcp_servers", McpServerConfig.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("tool_permissions", ToolPermission.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("tool_approvals", ToolApproval.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("checkpoints", Checkpoint.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("conversations", ConversationMeta.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}
