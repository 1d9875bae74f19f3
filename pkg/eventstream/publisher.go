package eventstream

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// EventPublisher broadcasts turn events via PostgreSQL NOTIFY. Unlike the
// teacher's EventPublisher, it does not persist a parallel events table:
// durable state already lives in the Message and Checkpoint rows written by
// pkg/agentgraph and pkg/checkpoint, and the catchup adapter reads those
// directly. This publisher's job is purely the live-fanout path.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a new EventPublisher. db should be the *sql.DB
// from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// PublishScratchpad broadcasts a scratchpad event for the start or the end
// of one tool call.
func (p *EventPublisher) PublishScratchpad(ctx context.Context, threadID string, payload ScratchpadPayload) error {
	return p.notify(ctx, threadID, payload)
}

// PublishLLMToken broadcasts one incremental assistant-text chunk.
func (p *EventPublisher) PublishLLMToken(ctx context.Context, threadID string, payload LLMTokenPayload) error {
	return p.notify(ctx, threadID, payload)
}

// PublishPlainTextAnswer broadcasts the turn's final assistant answer.
func (p *EventPublisher) PublishPlainTextAnswer(ctx context.Context, threadID string, payload PlainTextAnswerPayload) error {
	return p.notify(ctx, threadID, payload)
}

// PublishApprovalRequired broadcasts that the graph parked at human_review
// for one tool call.
func (p *EventPublisher) PublishApprovalRequired(ctx context.Context, threadID string, payload ApprovalRequiredPayload) error {
	return p.notify(ctx, threadID, payload)
}

// PublishServerError broadcasts a terminal error for the turn.
func (p *EventPublisher) PublishServerError(ctx context.Context, threadID string, payload ServerErrorPayload) error {
	return p.notify(ctx, threadID, payload)
}

// PublishStreamEnd broadcasts the turn's normal terminal event.
func (p *EventPublisher) PublishStreamEnd(ctx context.Context, threadID string, payload StreamEndPayload) error {
	return p.notify(ctx, threadID, payload)
}

func (p *EventPublisher) notify(ctx context.Context, threadID string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", ThreadChannel(threadID), notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs
// to fall back to a REST fetch (here: a re-subscribe, since no events table
// backs this publisher — see the package-level catchup note).
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type     string `json:"type"`
		ThreadID string `json:"thread_id"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":      routing.Type,
		"thread_id": routing.ThreadID,
		"truncated": true,
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
