package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Message is one entry in a conversation's append-only log: a user turn,
// an assistant turn (with or without tool_calls), or a tool result. The
// scratchpad carries the tool-use trace accumulated for an assistant turn.
type Message struct {
	ent.Schema
}

// Fields of the Message.
func (Message) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("message_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.Int("sequence_number").
			Comment("Session-scoped order"),
		field.Enum("role").
			Values("user", "assistant", "tool_call", "tool_result"),
		field.Text("content"),
		field.JSON("tool_calls", []map[string]interface{}{}).
			Optional().
			Comment("Assistant messages: [{id, name, arguments}]"),
		field.String("tool_call_id").
			Optional().
			Nillable(),
		field.String("tool_name").
			Optional().
			Nillable(),
		field.JSON("scratchpad", []map[string]interface{}{}).
			Optional().
			Comment("Tool-use trace attached when the turn completes"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the Message.
func (Message) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("conversation", ConversationMeta.Type).
			Ref("messages").
			Field("session_id").
			Unique().
			Required().
			Immutable(),
	}
}

// Indexes of the Message.
func (Message) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "sequence_number"),
	}
}
