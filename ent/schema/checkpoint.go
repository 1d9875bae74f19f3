package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds a durable snapshot of one agent-graph state, keyed by
// (user_id, thread_id, checkpoint_id). thread_id always equals the owning
// session_id. Ordered history is recovered by sorting on created_at, the
// SQL analogue of a Redis ZSET index.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("row_id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("thread_id").
			Immutable(),
		field.String("checkpoint_id").
			Immutable(),
		field.JSON("state", map[string]interface{}{}).
			Comment("Ordered message log + graph-internal channel values"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.JSON("parent_config", map[string]interface{}{}).
			Optional().
			Comment("Sanitized: no live tool-registry handles or callbacks"),
		field.JSON("pending_writes", []map[string]interface{}{}).
			Optional().
			Comment("Survive until the next full Put overwrites them"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Checkpoint.
func (Checkpoint) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("user", User.Type).
			Ref("checkpoints").
			Field("user_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "thread_id", "checkpoint_id").
			Unique(),
		index.Fields("user_id", "thread_id", "created_at"),
	}
}
