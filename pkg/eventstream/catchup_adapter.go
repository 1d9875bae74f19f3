package eventstream

import (
	"context"
	"strings"

	"github.com/tarsy-labs/agentgw/ent"
)

// messageQuerier abstracts the message query method needed by
// MessageStoreAdapter. Implemented by *EntMessageStore (messagestore.go),
// which wraps an *ent.Client; kept as a small interface for testability.
type messageQuerier interface {
	MessagesSince(ctx context.Context, threadID string, sinceSeq, limit int) ([]*ent.Message, error)
}

// MessageStoreAdapter wraps a messageQuerier to implement CatchupQuerier: it
// reconstructs scratchpad and plain_text_answer payloads directly from
// persisted Message rows, the only two wire event types durable enough to
// replay.
type MessageStoreAdapter struct {
	querier messageQuerier
}

// NewMessageStoreAdapter creates a CatchupQuerier from a messageQuerier.
func NewMessageStoreAdapter(q messageQuerier) *MessageStoreAdapter {
	return &MessageStoreAdapter{querier: q}
}

// GetCatchupEvents queries messages since sinceID (a sequence_number) up to
// limit, translating each into the CatchupEvent shape the ConnectionManager
// replays to a reconnecting client. channel must be a "thread:{id}" name;
// anything else returns no events.
func (a *MessageStoreAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	threadID, ok := strings.CutPrefix(channel, "thread:")
	if !ok {
		return nil, nil
	}

	messages, err := a.querier.MessagesSince(ctx, threadID, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "tool_result":
			result = append(result, CatchupEvent{
				ID: m.SequenceNumber,
				Payload: map[string]interface{}{
					"type":         EventTypeScratchpad,
					"thread_id":    threadID,
					"phase":        ScratchpadPhaseToolEnd,
					"tool_call_id": derefStr(m.ToolCallID),
					"tool_name":    derefStr(m.ToolName),
					"output":       m.Content,
					"timestamp":    m.CreatedAt.Format(timeFormat),
				},
			})
		case "assistant":
			if m.Content == "" {
				continue
			}
			result = append(result, CatchupEvent{
				ID: m.SequenceNumber,
				Payload: map[string]interface{}{
					"type":       EventTypePlainTextAnswer,
					"thread_id":  threadID,
					"message_id": m.ID,
					"content":    m.Content,
					"timestamp":  m.CreatedAt.Format(timeFormat),
				},
			})
		}
	}
	return result, nil
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
