package eventstream

import (
	"context"
	"testing"
	"time"

	"github.com/tarsy-labs/agentgw/ent"
)

type fakeMessageQuerier struct {
	messages []*ent.Message
}

func (f *fakeMessageQuerier) MessagesSince(ctx context.Context, threadID string, sinceSeq, limit int) ([]*ent.Message, error) {
	return f.messages, nil
}

func strPtr(s string) *string { return &s }

func TestMessageStoreAdapter_TranslatesRoles(t *testing.T) {
	now := time.Now()
	toolResult := &ent.Message{
		ID:             "m1",
		SequenceNumber: 3,
		Role:           "tool_result",
		Content:        "file contents",
		ToolCallID:     strPtr("call-1"),
		ToolName:       strPtr("get_file"),
		CreatedAt:      now,
	}
	assistant := &ent.Message{
		ID:             "m2",
		SequenceNumber: 4,
		Role:           "assistant",
		Content:        "Here is the file.",
		CreatedAt:      now,
	}
	emptyAssistant := &ent.Message{
		ID:             "m3",
		SequenceNumber: 2,
		Role:           "assistant",
		Content:        "",
		CreatedAt:      now,
	}

	adapter := NewMessageStoreAdapter(&fakeMessageQuerier{
		messages: []*ent.Message{toolResult, assistant, emptyAssistant},
	})

	events, err := adapter.GetCatchupEvents(context.Background(), "thread:t1", 0, 200)
	if err != nil {
		t.Fatalf("GetCatchupEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (empty assistant turns must be skipped)", len(events))
	}

	if events[0].Payload["type"] != EventTypeScratchpad {
		t.Errorf("events[0] type = %v, want %v", events[0].Payload["type"], EventTypeScratchpad)
	}
	if events[1].Payload["type"] != EventTypePlainTextAnswer {
		t.Errorf("events[1] type = %v, want %v", events[1].Payload["type"], EventTypePlainTextAnswer)
	}
}

func TestMessageStoreAdapter_NonThreadChannel(t *testing.T) {
	adapter := NewMessageStoreAdapter(&fakeMessageQuerier{})
	events, err := adapter.GetCatchupEvents(context.Background(), "sessions", 0, 200)
	if err != nil {
		t.Fatalf("GetCatchupEvents: %v", err)
	}
	if events != nil {
		t.Errorf("expected nil events for non-thread channel, got %v", events)
	}
}
