package agentgraph

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-labs/agentgw/pkg/llm"
	"github.com/tarsy-labs/agentgw/pkg/permission"
	"github.com/tarsy-labs/agentgw/pkg/toolfactory"
)

type fakeLLM struct {
	responses []llm.StreamChunk
	calls     int
}

func (f *fakeLLM) GenerateStream(ctx context.Context, threadID, modelProvider, model string, messages []llm.ConversationMessage, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, <-chan error) {
	f.calls++
	chunks := make(chan llm.StreamChunk, len(f.responses))
	errs := make(chan error, 1)
	for _, r := range f.responses {
		chunks <- r
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

type fakeApprovals struct {
	approved map[string]string // toolName -> approvalType ("always"/"never"), absent = needs approval
}

func (f *fakeApprovals) IsToolApproved(ctx context.Context, userID, toolName string) (bool, *string, error) {
	if t, ok := f.approved[toolName]; ok {
		tt := t
		return t == "never", &tt, nil
	}
	return true, nil, nil
}

func TestRouteTools_NoToolCallsEndsGraph(t *testing.T) {
	deps := &Deps{UserID: "user-1", Permissions: &fakeApprovals{}, Pending: permission.NewPendingRegistry()}
	route := routeTools(deps)
	s := &State{Messages: []Message{{Role: RoleAssistant, Content: "hello"}}}
	next, err := route(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, End, next)
}

func TestRouteTools_AlwaysApprovedRoutesToTools(t *testing.T) {
	deps := &Deps{
		UserID:      "user-1",
		Permissions: &fakeApprovals{approved: map[string]string{"fs_read": "always"}},
		Pending:     permission.NewPendingRegistry(),
	}
	route := routeTools(deps)
	s := &State{Messages: []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "fs_read"}}}}}
	next, err := route(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "tools", next)
}

func TestRouteTools_NeedsApprovalRegistersPendingAndRoutesToHumanReview(t *testing.T) {
	pending := permission.NewPendingRegistry()
	deps := &Deps{UserID: "user-1", Permissions: &fakeApprovals{}, Pending: pending}
	route := routeTools(deps)
	s := &State{Messages: []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "fs_delete", Args: map[string]interface{}{"path": "/tmp"}}}}}}

	next, err := route(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "human_review", next)

	p, found := pending.FindByUserAndTool("user-1", "fs_delete")
	require.True(t, found)
	assert.Nil(t, p.Approved)
}

func TestRouteTools_SearchToolNeverGated(t *testing.T) {
	deps := &Deps{UserID: "user-1", Permissions: &fakeApprovals{}, Pending: permission.NewPendingRegistry()}
	route := routeTools(deps)
	s := &State{Messages: []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: toolfactory.SearchToolName}}}}}
	next, err := route(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "tools", next)
}

func TestHumanReviewNode_Branches(t *testing.T) {
	pending := permission.NewPendingRegistry()
	deps := &Deps{UserID: "user-1", Pending: pending}

	approvedID := pending.Create("user-1", "approved_tool", "srv", nil)
	pending.Approve(approvedID, "once")
	deniedID := pending.Create("user-1", "denied_tool", "srv", nil)
	pending.Deny(deniedID)
	pending.Create("user-1", "pending_tool", "srv", nil)
	// "untracked_tool" has no pending record at all.

	s := &State{Messages: []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ID: "1", Name: "approved_tool"},
		{ID: "2", Name: "denied_tool"},
		{ID: "3", Name: "pending_tool"},
		{ID: "4", Name: "untracked_tool"},
	}}}}

	out, err := humanReviewNode(deps)(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, out, 3) // approved_tool produces no message

	byID := map[string]Message{}
	for _, m := range out {
		byID[m.ToolCallID] = m
	}
	assert.Contains(t, byID["2"].Content, "denied")
	assert.Contains(t, byID["3"].Content, "awaiting")
	assert.Contains(t, byID["4"].Content, "denied", "no pending record must be treated as denied")

	_, stillDenied := pending.FindByUserAndTool("user-1", "denied_tool")
	assert.False(t, stillDenied, "denied record must be removed after human_review reads it")
	_, stillPending := pending.FindByUserAndTool("user-1", "pending_tool")
	assert.True(t, stillPending, "still-undecided record must survive for the resume cycle")
}

func TestToolsNode_SkipsAlreadyResolvedAndInvokesRemainder(t *testing.T) {
	connA := &stubConnector{result: "result-a"}
	catalog, err := toolfactory.Build(context.Background(), "user-1", []toolfactory.Server{
		{ServerID: "srv-1", ServerName: "srv", Connector: connA},
	}, &alwaysEnabled{}, nil)
	require.NoError(t, err)

	deps := &Deps{UserID: "user-1", Catalog: catalog, Pending: permission.NewPendingRegistry()}

	s := &State{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "1", Name: "srv_tool_a"},
			{ID: "2", Name: "srv_tool_a"},
		}},
		{Role: RoleToolResult, ToolCallID: "1", Content: "already done"},
	}}

	out, err := toolsNode(deps)(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ToolCallID)
	assert.Equal(t, "result-a", out[0].Content)
}

func TestToolsNode_UnknownToolSynthesizesError(t *testing.T) {
	deps := &Deps{UserID: "user-1", Pending: permission.NewPendingRegistry()}
	s := &State{Messages: []Message{{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1", Name: "nonexistent"}}}}}

	out, err := toolsNode(deps)(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Content, "Unknown tool")
}

func TestAgentNode_AppendsAssistantMessageWithToolCalls(t *testing.T) {
	fake := &fakeLLM{responses: []llm.StreamChunk{
		{Content: "thinking...", IsThinking: true},
		{ToolCalls: []llm.ToolCall{{ID: "1", Name: "srv_tool_a", ArgsJSON: `{"x":1}`}}, IsFinal: true},
	}}
	deps := &Deps{LLM: fake, ThreadID: "thread-1"}

	out, err := agentNode(deps)(context.Background(), &State{Messages: []Message{{Role: RoleUser, Content: "do it"}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, RoleAssistant, out[0].Role)
	require.Len(t, out[0].ToolCalls, 1)
	assert.Equal(t, "srv_tool_a", out[0].ToolCalls[0].Name)
	assert.Equal(t, float64(1), out[0].ToolCalls[0].Args["x"])
	assert.Equal(t, 1, fake.calls)
}

// stubConnector and alwaysEnabled support the toolfactory.Build calls above
// without depending on toolfactory's own unexported test doubles.
type stubConnector struct {
	result string
}

func (s *stubConnector) ListTools(ctx context.Context) ([]*mcpsdk.Tool, error) {
	return []*mcpsdk.Tool{{Name: "tool_a", Description: "d", InputSchema: []byte(`{"type":"object"}`)}}, nil
}
func (s *stubConnector) RunTool(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	return s.result, nil
}

type alwaysEnabled struct{}

func (alwaysEnabled) DisabledTools(ctx context.Context, userID, serverID string) (map[string]bool, error) {
	return nil, nil
}
