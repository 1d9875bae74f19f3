package agentgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_RunsToEndWithNoToolCalls(t *testing.T) {
	g := NewGraph("agent")
	g.AddNode("agent", func(ctx context.Context, s *State) ([]Message, error) {
		return []Message{{Role: RoleAssistant, Content: "done"}}, nil
	})
	g.AddConditionalEdge("agent", func(ctx context.Context, s *State) (string, error) {
		return End, nil
	})

	result, err := g.Run(context.Background(), "", &State{})
	require.NoError(t, err)
	assert.False(t, result.Interrupted)
	require.Len(t, result.State.Messages, 1)
	assert.Equal(t, "done", result.State.Messages[0].Content)
}

func TestGraph_LoopsBetweenNodesUntilEnd(t *testing.T) {
	g := NewGraph("agent")
	steps := 0
	g.AddNode("agent", func(ctx context.Context, s *State) ([]Message, error) {
		steps++
		return []Message{{Role: RoleAssistant, Content: "step"}}, nil
	})
	g.AddNode("tools", func(ctx context.Context, s *State) ([]Message, error) {
		return []Message{{Role: RoleToolResult, Content: "tool ran"}}, nil
	})
	g.AddConditionalEdge("agent", func(ctx context.Context, s *State) (string, error) {
		if steps >= 2 {
			return End, nil
		}
		return "tools", nil
	})
	g.AddEdge("tools", "agent")

	result, err := g.Run(context.Background(), "", &State{})
	require.NoError(t, err)
	assert.Equal(t, 2, steps)
	assert.Len(t, result.State.Messages, 3) // step, tool ran, step
}

func TestGraph_InterruptBeforePausesAndResumes(t *testing.T) {
	g := NewGraph("agent")
	g.AddNode("agent", func(ctx context.Context, s *State) ([]Message, error) {
		return []Message{{Role: RoleAssistant, Content: "gate me"}}, nil
	})
	g.AddNode("human_review", func(ctx context.Context, s *State) ([]Message, error) {
		return []Message{{Role: RoleToolResult, Content: "reviewed"}}, nil
	})
	g.AddConditionalEdge("agent", func(ctx context.Context, s *State) (string, error) {
		return "human_review", nil
	})
	g.AddEdge("human_review", End)
	g.InterruptBefore("human_review")

	result, err := g.Run(context.Background(), "", &State{})
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Equal(t, "human_review", result.NextNode)
	require.Len(t, result.State.Messages, 1)

	resumed, err := g.Run(context.Background(), result.NextNode, result.State)
	require.NoError(t, err)
	assert.False(t, resumed.Interrupted)
	require.Len(t, resumed.State.Messages, 2)
	assert.Equal(t, "reviewed", resumed.State.Messages[1].Content)
}

func TestGraph_UnknownNodeErrors(t *testing.T) {
	g := NewGraph("missing")
	_, err := g.Run(context.Background(), "", &State{})
	assert.Error(t, err)
}
