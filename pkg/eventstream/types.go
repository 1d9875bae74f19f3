// Package eventstream delivers agent-graph turn events to WebSocket clients,
// via PostgreSQL NOTIFY/LISTEN for cross-replica fan-out and a catchup query
// for clients that reconnect mid-turn.
//
// ════════════════════════════════════════════════════════════════
// Wire event lifecycle
// ════════════════════════════════════════════════════════════════
//
// A single POST /stream call emits a sequence of transient events on the
// thread's channel, terminated by exactly one stream_end:
//
//	scratchpad               (repeated — a tool_start and a tool_end per
//	                          tool call)
//	llm_token                (repeated — streamed assistant text, ephemeral)
//	plain_text_answer        (at most once — the turn's final answer)
//	tool_approval_required   (at most once — only when the loop parks for
//	                          human review; no stream_end follows until
//	                          the approval is resolved and the stream is
//	                          resumed)
//	server_error             (at most once — terminal; no stream_end follows)
//	stream_end               (always, unless tool_approval_required or
//	                          server_error fired instead)
//
// Only scratchpad and plain_text_answer are persisted (as Message rows);
// llm_token, tool_approval_required, server_error and stream_end are
// NOTIFY-only and lost on disconnect — a client that misses them falls back
// to re-issuing the stream request, which is idempotent by thread_id.
// ════════════════════════════════════════════════════════════════
package eventstream

// Event type discriminators carried in every payload's "type" field.
const (
	EventTypeScratchpad       = "scratchpad"
	EventTypeLLMToken         = "llm_token"
	EventTypePlainTextAnswer  = "plain_text_answer"
	EventTypeApprovalRequired = "tool_approval_required"
	EventTypeServerError      = "server_error"
	EventTypeStreamEnd        = "stream_end"
)

// ThreadChannel returns the NOTIFY channel name for one conversation thread.
// Format: "thread:{thread_id}"
func ThreadChannel(threadID string) string {
	return "thread:" + threadID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "thread:abc-123"
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
