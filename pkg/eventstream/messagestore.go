package eventstream

import (
	"context"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/ent/message"
)

// EntMessageStore adapts *ent.Client to messageQuerier, giving
// MessageStoreAdapter a durable source of catchup events without pulling
// the whole ent package into this package's public surface.
type EntMessageStore struct {
	client *ent.Client
}

// NewEntMessageStore wraps an ent client for catchup queries.
func NewEntMessageStore(client *ent.Client) *EntMessageStore {
	return &EntMessageStore{client: client}
}

var _ messageQuerier = (*EntMessageStore)(nil)

// MessagesSince returns up to limit messages for threadID with
// sequence_number > sinceSeq, oldest first — the replay order a
// reconnecting WebSocket client expects.
func (s *EntMessageStore) MessagesSince(ctx context.Context, threadID string, sinceSeq, limit int) ([]*ent.Message, error) {
	return s.client.Message.Query().
		Where(
			message.SessionID(threadID),
			message.SequenceNumberGT(sinceSeq),
		).
		Order(ent.Asc(message.FieldSequenceNumber)).
		Limit(limit).
		All(ctx)
}
