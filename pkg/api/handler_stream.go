package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tarsy-labs/agentgw/ent"
	"github.com/tarsy-labs/agentgw/ent/message"
	"github.com/tarsy-labs/agentgw/pkg/agentgraph"
	"github.com/tarsy-labs/agentgw/pkg/eventstream"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/google/uuid"
)

// streamHandler handles POST /api/v1/threads/:thread_id/stream: it drives
// one turn of the agent graph to completion or to its next human_review
// park, persists the turn's messages, and broadcasts the live events over
// the thread's WebSocket channel. The synchronous HTTP response carries
// only the turn's summary — incremental tokens arrive over the socket.
func (s *Server) streamHandler(c *echo.Context) error {
	threadID := c.Param("thread_id")
	if threadID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "thread_id is required")
	}
	userID := extractUserID(c)

	var req StreamRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Resume && req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required unless resume is true")
	}

	ctx := c.Request().Context()
	if err := s.ensureConversation(ctx, userID, threadID); err != nil {
		return mapServiceError(err)
	}

	runner, err := s.runnerFor(ctx, userID, threadID, req.ModelProvider, req.Model)
	if err != nil {
		return mapServiceError(err)
	}

	var input []agentgraph.Message
	if !req.Resume {
		input = []agentgraph.Message{{Role: agentgraph.RoleUser, Content: req.Message}}
	}

	streamStart := time.Now()
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.streams.Register(userID, threadID, cancel)
	defer s.streams.Unregister(userID, threadID)

	out, err := runner.Run(cancelCtx, input)
	if err != nil {
		s.publishServerError(ctx, threadID, err)
		return mapServiceError(err)
	}

	newMessages, err := s.unpersistedTail(ctx, threadID, out.Messages)
	if err != nil {
		return mapServiceError(err)
	}
	if err := s.persistNewMessages(ctx, threadID, newMessages); err != nil {
		return mapServiceError(err)
	}
	s.publishTurnEvents(ctx, userID, threadID, out, streamStart, req.Resume)

	return c.JSON(http.StatusOK, &StreamResponse{
		ThreadID:    threadID,
		Messages:    out.Messages,
		Interrupted: out.Interrupted,
	})
}

// cancelThreadHandler handles POST /api/v1/threads/:thread_id/cancel.
func (s *Server) cancelThreadHandler(c *echo.Context) error {
	threadID := c.Param("thread_id")
	userID := extractUserID(c)
	if ok := s.streams.Cancel(userID, threadID); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no stream is currently running on this process for this thread")
	}
	return c.NoContent(http.StatusAccepted)
}

// ensureConversation creates the owning ConversationMeta row the first time
// a thread is used; subsequent calls are no-ops.
func (s *Server) ensureConversation(ctx context.Context, userID, threadID string) error {
	_, err := s.entc.ConversationMeta.Get(ctx, threadID)
	if err == nil {
		return nil
	}
	if !ent.IsNotFound(err) {
		return err
	}
	return s.entc.ConversationMeta.Create().
		SetID(threadID).
		SetOwnerID(userID).
		Exec(ctx)
}

// unpersistedTail returns the suffix of the graph's full message log past
// what is already durably stored, since the runner replays the whole
// checkpointed history on every call (including turns a prior request
// already persisted).
func (s *Server) unpersistedTail(ctx context.Context, threadID string, all []agentgraph.Message) ([]agentgraph.Message, error) {
	count, err := s.entc.Message.Query().Where(message.SessionID(threadID)).Count(ctx)
	if err != nil {
		return nil, err
	}
	if count >= len(all) {
		return nil, nil
	}
	return all[count:], nil
}

// persistNewMessages appends the turn's messages to the thread's durable
// log, continuing the session-scoped sequence number.
func (s *Server) persistNewMessages(ctx context.Context, threadID string, msgs []agentgraph.Message) error {
	last, err := s.entc.Message.Query().
		Where(message.SessionID(threadID)).
		Order(ent.Desc(message.FieldSequenceNumber)).
		First(ctx)
	seq := 0
	if err == nil {
		seq = last.SequenceNumber + 1
	} else if !ent.IsNotFound(err) {
		return err
	}

	for _, m := range msgs {
		create := s.entc.Message.Create().
			SetID(uuid.NewString()).
			SetSessionID(threadID).
			SetSequenceNumber(seq).
			SetRole(message.Role(m.Role)).
			SetContent(m.Content)
		if m.ToolCallID != "" {
			create = create.SetToolCallID(m.ToolCallID)
		}
		if m.ToolName != "" {
			create = create.SetToolName(m.ToolName)
		}
		if len(m.ToolCalls) > 0 {
			create = create.SetToolCalls(toolCallsToJSON(m.ToolCalls))
		}
		if err := create.Exec(ctx); err != nil {
			return err
		}
		seq++
	}
	return nil
}

func toolCallsToJSON(calls []agentgraph.ToolCall) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(calls))
	for _, tc := range calls {
		out = append(out, map[string]interface{}{
			"id":        tc.ID,
			"name":      tc.Name,
			"arguments": tc.Args,
		})
	}
	return out
}

// approvalSweepMaxAge bounds how long a pending approval stays eligible for
// the interrupt sweep regardless of resume, a safety net against a stuck
// entry surfacing indefinitely after its owning stream is long gone.
const approvalSweepMaxAge = time.Hour

// publishTurnEvents emits the stream's terminal NOTIFY event: either a
// tool_approval_required for one newly gated call, or a plain_text_answer
// followed by stream_end.
func (s *Server) publishTurnEvents(ctx context.Context, userID, threadID string, out *agentgraph.Output, streamStart time.Time, resume bool) {
	now := time.Now()

	if out.Interrupted {
		p := nextApprovalForSweep(s.pending.PendingForUser(userID), streamStart, resume, now)
		if p == nil {
			return
		}
		_ = s.publisher.PublishApprovalRequired(ctx, threadID, eventstream.ApprovalRequiredPayload{
			Type:       eventstream.EventTypeApprovalRequired,
			ThreadID:   threadID,
			ApprovalID: p.ID,
			ToolName:   p.ToolName,
			ServerName: p.ServerName,
			Input:      p.ToolInput,
			Timestamp:  now.Format(time.RFC3339Nano),
		})
		return
	}

	nowStr := now.Format(time.RFC3339Nano)
	if len(out.Messages) > 0 {
		last := out.Messages[len(out.Messages)-1]
		if last.Role == agentgraph.RoleAssistant {
			_ = s.publisher.PublishPlainTextAnswer(ctx, threadID, eventstream.PlainTextAnswerPayload{
				Type:      eventstream.EventTypePlainTextAnswer,
				ThreadID:  threadID,
				Content:   last.Content,
				Timestamp: nowStr,
			})
		}
	}
	_ = s.publisher.PublishStreamEnd(ctx, threadID, eventstream.StreamEndPayload{
		Type:      eventstream.EventTypeStreamEnd,
		ThreadID:  threadID,
		Timestamp: nowStr,
	})
}

// nextApprovalForSweep picks at most one pending approval to surface from
// the post-loop interrupt sweep, avoiding UI flicker from one prompt per
// gated call. Entries older than approvalSweepMaxAge are always dropped.
// When resume is false the sweep only considers entries created during
// this stream (a retried call's approval, not one left over from a
// previous, already-notified stream on the same thread); when resume is
// true — re-entering at a checkpoint from a prior stream — age since
// streamStart doesn't apply. Ties broken by oldest CreatedAt first.
func nextApprovalForSweep(pending []*permission.PendingApproval, streamStart time.Time, resume bool, now time.Time) *permission.PendingApproval {
	var best *permission.PendingApproval
	for _, p := range pending {
		if now.Sub(p.CreatedAt) > approvalSweepMaxAge {
			continue
		}
		if !resume && p.CreatedAt.Before(streamStart) {
			continue
		}
		if best == nil || p.CreatedAt.Before(best.CreatedAt) {
			best = p
		}
	}
	return best
}

func (s *Server) publishServerError(ctx context.Context, threadID string, err error) {
	_ = s.publisher.PublishServerError(ctx, threadID, eventstream.ServerErrorPayload{
		Type:      eventstream.EventTypeServerError,
		ThreadID:  threadID,
		Message:   err.Error(),
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}
