package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ConversationMeta holds per-session chat metadata. thread_id (== session_id)
// is the join key to the Checkpoint keyspace.
type ConversationMeta struct {
	ent.Schema
}

// Fields of the ConversationMeta.
func (ConversationMeta) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable(),
		field.String("owner_id").
			Immutable(),
		field.String("title").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the ConversationMeta.
func (ConversationMeta) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("owner", User.Type).
			Ref("conversations").
			Field("owner_id").
			Unique().
			Required().
			Immutable(),
		edge.To("messages", Message.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the ConversationMeta.
func (ConversationMeta) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("owner_id", "created_at"),
	}
}
