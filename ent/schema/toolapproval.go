package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ToolApproval is a user's standing approval policy for one tool. At most
// one row exists per (user_id, tool_name); "once" rows expire after
// approvalOnceTTL (see pkg/permission).
type ToolApproval struct {
	ent.Schema
}

// Fields of the ToolApproval.
func (ToolApproval) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("approval_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("tool_name"),
		field.String("server_name").
			Optional().
			Nillable(),
		field.Enum("approval_type").
			Values("once", "always", "never"),
		field.Time("created_at").
			Default(time.Now),
		field.Time("expires_at").
			Optional().
			Nillable().
			Comment("Set for 'once'; nil for 'always'/'never'"),
	}
}

// Edges of the ToolApproval.
func (ToolApproval) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).
			Ref("tool_approvals").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the ToolApproval.
func (ToolApproval) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "tool_name").
			Unique(),
	}
}
