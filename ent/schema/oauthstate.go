package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OAuthState is a short-lived, single-use record created when an OAuth
// authorization URL is issued and consumed (read-then-delete) at finalize.
// Not owned by a User — the user isn't known until the provider redirects
// back with a code.
type OAuthState struct {
	ent.Schema
}

// Fields of the OAuthState.
func (OAuthState) Fields() []ent.Field {
	return []ent.Field{
		field.String("state").
			StorageKey("state").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("client_id"),
		field.String("client_secret").
			Optional().
			Nillable().
			Sensitive(),
		field.String("token_url"),
		field.String("authorization_url"),
		field.String("redirect_uri"),
		field.String("scope").
			Optional().
			Nillable(),
		field.String("server_url"),
		field.String("server_name"),
		field.String("setting_id").
			Optional().
			Nillable().
			Comment("Set when finalizing an update to an existing McpServerConfig"),
		field.String("pkce_verifier"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at").
			Comment("created_at + ~10 minutes"),
	}
}

// Indexes of the OAuthState.
func (OAuthState) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("expires_at"),
	}
}
