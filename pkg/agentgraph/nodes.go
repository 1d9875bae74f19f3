package agentgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tarsy-labs/agentgw/pkg/llm"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
)

const internalToolPrefix = "_"

var _ approvalChecker = (*permission.Store)(nil)

// llmClient is the slice of llm.Client the agent node needs, kept as an
// interface so tests can fake the sidecar without a live gRPC connection.
// modelProvider/model override the sidecar's configured default for this
// call only; either may be empty.
type llmClient interface {
	GenerateStream(ctx context.Context, threadID, modelProvider, model string, messages []llm.ConversationMessage, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, <-chan error)
}

var _ llmClient = (*llm.Client)(nil)

// approvalChecker is the slice of permission.Store the graph needs.
type approvalChecker interface {
	IsToolApproved(ctx context.Context, userID, toolName string) (needsApproval bool, approvalType *string, err error)
}

// EventSink streams a turn's live, ephemeral events — LLM token deltas and
// tool start/end notices — to whatever transport is watching the thread. A
// nil Deps.Events is valid: the graph simply runs without live streaming,
// as in most tests.
type EventSink interface {
	PublishLLMToken(ctx context.Context, delta string)
	PublishToolStart(ctx context.Context, toolCallID, toolName string, input map[string]interface{})
	PublishToolEnd(ctx context.Context, toolCallID, toolName, output string, isError bool)
}

// Deps wires one user's turn: the bound catalog of tools, the LLM, and the
// permission machinery. A Deps is built fresh per compiled graph (one per
// cached agent, per pkg/agentcache).
type Deps struct {
	LLM           llmClient
	Catalog       *toolfactory.Catalog
	Permissions   approvalChecker
	Pending       *permission.PendingRegistry
	UserID        string
	ThreadID      string
	ModelProvider string
	Model         string
	Events        EventSink
}

// Build compiles the turn graph: agent -> (route_tools) -> {END,
// human_review, tools}; tools -> agent; human_review -> tools. The graph
// pauses (interrupt-before) at human_review so a checkpoint can be written
// at the gate.
func Build(deps *Deps) *Graph {
	g := NewGraph("agent")

	g.AddNode("agent", agentNode(deps))
	g.AddNode("human_review", humanReviewNode(deps))
	g.AddNode("tools", toolsNode(deps))

	g.AddConditionalEdge("agent", routeTools(deps))
	g.AddEdge("tools", "agent")
	g.AddEdge("human_review", "tools")

	g.InterruptBefore("human_review")
	return g
}

// agentNode binds the current tool set to the LLM and appends its response.
func agentNode(deps *Deps) NodeFunc {
	return func(ctx context.Context, s *State) ([]Message, error) {
		handles := boundToolSet(deps, s)
		tools := make([]llm.ToolDefinition, 0, len(handles)+1)
		for _, h := range handles {
			schemaJSON, _ := json.Marshal(h.Input.Schema)
			tools = append(tools, llm.ToolDefinition{
				Name:            h.Name,
				Description:     h.Description,
				InputSchemaJSON: string(schemaJSON),
			})
		}
		if deps.Catalog != nil {
			search := deps.Catalog.SearchToolHandle()
			schemaJSON, _ := json.Marshal(search.Input.Schema)
			tools = append(tools, llm.ToolDefinition{
				Name:            search.Name,
				Description:     search.Description,
				InputSchemaJSON: string(schemaJSON),
			})
		}

		messages := toConversationMessages(s.Messages)
		chunks, errs := deps.LLM.GenerateStream(ctx, deps.ThreadID, deps.ModelProvider, deps.Model, messages, tools)

		var content strings.Builder
		var toolCalls []ToolCall
		for chunk := range chunks {
			if chunk.Error != "" {
				return nil, fmt.Errorf("llm stream error: %s", chunk.Error)
			}
			if chunk.IsThinking {
				continue
			}
			content.WriteString(chunk.Content)
			if chunk.Content != "" && deps.Events != nil {
				deps.Events.PublishLLMToken(ctx, chunk.Content)
			}
			for _, tc := range chunk.ToolCalls {
				var args map[string]interface{}
				if tc.ArgsJSON != "" {
					if err := json.Unmarshal([]byte(tc.ArgsJSON), &args); err != nil {
						return nil, fmt.Errorf("decode tool call args for %q: %w", tc.Name, err)
					}
				}
				toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Args: args})
			}
		}
		if err := <-errs; err != nil {
			return nil, err
		}

		return []Message{{
			Role:      RoleAssistant,
			Content:   content.String(),
			ToolCalls: toolCalls,
		}}, nil
	}
}

// boundToolSet returns the catalog's initial tools plus any tools
// dynamically revealed by a prior search_tools result, resolved for this
// step only. Hard failures to parse the search result are logged and
// ignored, matching the original's best-effort parsing.
func boundToolSet(deps *Deps, s *State) []*toolfactory.ToolHandle {
	var handles []*toolfactory.ToolHandle
	if deps.Catalog != nil {
		handles = append(handles, deps.Catalog.Handles()...)
	}

	if len(s.Messages) == 0 {
		return handles
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleToolResult || last.ToolName != toolfactory.SearchToolName {
		return handles
	}

	var results []toolfactory.SearchResult
	if err := json.Unmarshal([]byte(last.Content), &results); err != nil {
		return handles
	}
	for _, r := range results {
		if h, ok := deps.Catalog.Lookup(r.Name); ok {
			handles = append(handles, h)
		}
	}
	return handles
}

func toConversationMessages(msgs []Message) []llm.ConversationMessage {
	out := make([]llm.ConversationMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			cm := llm.ConversationMessage{Role: llm.RoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				cm.ToolCalls = append(cm.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, ArgsJSON: string(argsJSON)})
			}
			out = append(out, cm)
		case RoleToolResult:
			out = append(out, llm.ConversationMessage{
				Role:       llm.RoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				ToolName:   m.ToolName,
			})
		default:
			out = append(out, llm.ConversationMessage{Role: llm.RoleUser, Content: m.Content})
		}
	}
	return out
}

// routeTools gates a just-produced assistant turn: no calls -> End; any
// call needing fresh approval -> human_review (registering a pending
// approval for each); otherwise -> tools.
func routeTools(deps *Deps) ConditionalEdge {
	return func(ctx context.Context, s *State) (string, error) {
		calls, ok := s.LastAssistantToolCalls()
		if !ok {
			return End, nil
		}

		gated := false
		for _, call := range calls {
			if call.Name == toolfactory.SearchToolName || strings.HasPrefix(call.Name, internalToolPrefix) {
				continue
			}

			needsApproval, approvalType, err := deps.Permissions.IsToolApproved(ctx, deps.UserID, call.Name)
			if err != nil {
				return "", fmt.Errorf("check tool approval for %q: %w", call.Name, err)
			}
			if needsApproval && approvalType == nil {
				// Backward-compat: an approval may have been saved under the
				// raw (pre-namespaced) suffix after the first underscore. It is
				// consulted only when the namespaced name has no standing
				// decision, so a namespaced row wins when both exist.
				if raw := rawSuffix(call.Name); raw != "" {
					if rawNeeds, _, err := deps.Permissions.IsToolApproved(ctx, deps.UserID, raw); err == nil && !rawNeeds {
						needsApproval = false
					}
				}
			}
			if !needsApproval {
				continue
			}

			serverName := "unknown"
			if h, ok := deps.Catalog.Lookup(call.Name); ok {
				serverName = h.ServerName
			}
			deps.Pending.Create(deps.UserID, call.Name, serverName, call.Args)
			gated = true
		}

		if gated {
			return "human_review", nil
		}
		return "tools", nil
	}
}

func rawSuffix(name string) string {
	idx := strings.Index(name, "_")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return name[idx+1:]
}

// humanReviewNode resolves each gated call's decision. Approved calls are
// left for the tool node to execute and clean up; denied, still-pending, or
// untracked calls (defense in depth) synthesize an error tool_result.
func humanReviewNode(deps *Deps) NodeFunc {
	return func(ctx context.Context, s *State) ([]Message, error) {
		calls, ok := s.LastAssistantToolCalls()
		if !ok {
			return nil, nil
		}

		var out []Message
		for _, call := range calls {
			p, found := deps.Pending.FindByUserAndTool(deps.UserID, call.Name)
			switch {
			case !found:
				// No record found: treat as denied (defense in depth) — the
				// original has no such fallback; this closes that gap.
				out = append(out, deniedResult(call, "no pending approval record found"))
			case p.Approved == nil:
				out = append(out, Message{
					Role:       RoleToolResult,
					Content:    fmt.Sprintf("Error: Tool '%s' is awaiting user approval.", call.Name),
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})
			case *p.Approved:
				// Approved: leave the record for the tool node to clean up.
			default:
				out = append(out, deniedResult(call, ""))
				deps.Pending.Remove(p.ID)
			}
		}
		return out, nil
	}
}

func deniedResult(call ToolCall, reason string) Message {
	content := fmt.Sprintf("Error: User explicitly denied execution of tool '%s'.", call.Name)
	if reason != "" {
		content = fmt.Sprintf("Error: User explicitly denied execution of tool '%s' (%s).", call.Name, reason)
	}
	return Message{Role: RoleToolResult, Content: content, ToolCallID: call.ID, ToolName: call.Name}
}

// toolsNode is the filtered execution node: it skips any tool call that
// already has a tool_result upstream (partial execution after
// human_review) and invokes the rest in declaration order.
func toolsNode(deps *Deps) NodeFunc {
	return func(ctx context.Context, s *State) ([]Message, error) {
		calls, ok := s.LastAssistantToolCalls()
		if !ok {
			return nil, nil
		}
		resolved := s.ResolvedToolCallIDs()

		var out []Message
		for _, call := range calls {
			if resolved[call.ID] {
				continue
			}

			if p, found := deps.Pending.FindByUserAndTool(deps.UserID, call.Name); found {
				deps.Pending.Remove(p.ID)
			}

			handle, ok := lookupHandle(deps, call.Name)
			if !ok {
				out = append(out, Message{
					Role:       RoleToolResult,
					Content:    fmt.Sprintf("Error: Unknown tool '%s'.", call.Name),
					ToolCallID: call.ID,
					ToolName:   call.Name,
				})
				continue
			}

			if deps.Events != nil {
				deps.Events.PublishToolStart(ctx, call.ID, call.Name, call.Args)
			}
			result, err := handle.Invoke(ctx, call.Args)
			if err != nil {
				result = fmt.Sprintf("Error: %s", err.Error())
			}
			if deps.Events != nil {
				deps.Events.PublishToolEnd(ctx, call.ID, call.Name, result, err != nil)
			}
			out = append(out, Message{
				Role:       RoleToolResult,
				Content:    result,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
		return out, nil
	}
}

func lookupHandle(deps *Deps, name string) (*toolfactory.ToolHandle, bool) {
	if name == toolfactory.SearchToolName && deps.Catalog != nil {
		return deps.Catalog.SearchToolHandle(), true
	}
	if deps.Catalog == nil {
		return nil, false
	}
	return deps.Catalog.Lookup(name)
}
