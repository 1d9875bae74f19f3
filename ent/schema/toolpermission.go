package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ToolPermission tracks whether a tool is enabled for a user on a given
// server. Absence of a row means the tool is enabled — this entity only
// ever records exceptions to the default.
type ToolPermission struct {
	ent.Schema
}

// Fields of the ToolPermission.
func (ToolPermission) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("permission_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("server_id").
			Immutable(),
		field.String("tool_name"),
		field.Bool("is_enabled").
			Default(true),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the ToolPermission.
func (ToolPermission) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).
			Ref("tool_permissions").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
		edge.From("server", McpServerConfig.Type).
			Ref("tool_permissions").
			Field("server_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ToolPermission.
func (ToolPermission) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "server_id", "tool_name").
			Unique(),
	}
}
