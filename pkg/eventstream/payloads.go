package eventstream

// Scratchpad phases, distinguishing a tool call's start from its end in the
// live stream. A third phase, agent_status, is reserved for future
// non-tool progress notices and currently unused.
const (
	ScratchpadPhaseToolStart   = "tool_start"
	ScratchpadPhaseToolEnd     = "tool_end"
	ScratchpadPhaseAgentStatus = "agent_status"
)

// ScratchpadPayload is the payload for scratchpad events. Phase
// distinguishes a tool call's dispatch (tool_start, Output/IsError unset)
// from its completion (tool_end, carrying the same shape persisted on the
// owning Message's scratchpad column).
type ScratchpadPayload struct {
	Type       string `json:"type"` // always EventTypeScratchpad
	ThreadID   string `json:"thread_id"`
	Phase      string `json:"phase"`
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Input      any    `json:"input"`
	Output     string `json:"output,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC3339Nano
}

// LLMTokenPayload is the payload for llm_token transient events — one per
// incremental assistant-text chunk. Ephemeral: lost on reconnect, the full
// text arrives via plain_text_answer once streaming completes.
type LLMTokenPayload struct {
	Type      string `json:"type"` // always EventTypeLLMToken
	ThreadID  string `json:"thread_id"`
	Delta     string `json:"delta"`
	Timestamp string `json:"timestamp"`
}

// PlainTextAnswerPayload is the payload for the turn's final assistant
// answer. Persisted as the corresponding assistant Message row.
type PlainTextAnswerPayload struct {
	Type      string `json:"type"` // always EventTypePlainTextAnswer
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ApprovalRequiredPayload is the payload for tool_approval_required events,
// emitted at most once per stream, for one of the tool calls the graph
// parks at human_review.
type ApprovalRequiredPayload struct {
	Type       string `json:"type"` // always EventTypeApprovalRequired
	ThreadID   string `json:"thread_id"`
	ApprovalID string `json:"approval_id"`
	ToolName   string `json:"tool_name"`
	ServerName string `json:"server_name"`
	Input      any    `json:"input"`
	Timestamp  string `json:"timestamp"`
}

// ServerErrorPayload is the payload for server_error — a terminal event;
// no stream_end follows it.
type ServerErrorPayload struct {
	Type      string `json:"type"` // always EventTypeServerError
	ThreadID  string `json:"thread_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// StreamEndPayload is the payload for stream_end, the normal terminal
// event of one POST /stream call.
type StreamEndPayload struct {
	Type      string `json:"type"` // always EventTypeStreamEnd
	ThreadID  string `json:"thread_id"`
	Timestamp string `json:"timestamp"`
}
