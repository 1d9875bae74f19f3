package agentgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tarsy-labs/agentgw/pkg/checkpoint"
)

// checkpointStore is the slice of checkpoint.Store the runner needs.
type checkpointStore interface {
	Get(ctx context.Context, userID, threadID, checkpointID string) (*checkpoint.Tuple, error)
	Put(ctx context.Context, userID, threadID, checkpointID string, state, metadata, parentConfig map[string]interface{}) (string, error)
}

var _ checkpointStore = (*checkpoint.Store)(nil)

// Runner drives a compiled Graph against the Checkpointer: a fresh request
// starts at the entry node with new input appended; an empty-input request
// on a thread with an interrupted checkpoint resumes at the paused node.
type Runner struct {
	Graph      *Graph
	Checkpoint checkpointStore
	UserID     string
	ThreadID   string
}

// Output is one Run's result: the final (or paused) message log and
// whether the graph is now waiting on human review.
type Output struct {
	Messages    []Message
	Interrupted bool
}

// Run executes one turn. input is nil to resume a thread waiting at
// human_review; otherwise its messages are appended to the thread's prior
// history (or start a new thread if none exists).
func (r *Runner) Run(ctx context.Context, input []Message) (*Output, error) {
	tuple, err := r.Checkpoint.Get(ctx, r.UserID, r.ThreadID, "")
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state *State
	startNode := ""
	if tuple != nil {
		state, err = decodeState(tuple.State)
		if err != nil {
			return nil, fmt.Errorf("decode checkpoint state: %w", err)
		}
		if interrupted, _ := tuple.Metadata["interrupted"].(bool); interrupted {
			if next, _ := tuple.Metadata["next_node"].(string); next != "" {
				startNode = next
			}
		}
	} else {
		state = &State{}
	}

	if startNode == "" {
		state = state.Append(input...)
	}

	result, err := r.Graph.Run(ctx, startNode, state)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeState(result.State)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint state: %w", err)
	}
	metadata := map[string]interface{}{"interrupted": result.Interrupted}
	if result.Interrupted {
		metadata["next_node"] = result.NextNode
	}
	if _, err := r.Checkpoint.Put(ctx, r.UserID, r.ThreadID, "", encoded, metadata, nil); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}

	return &Output{Messages: result.State.Messages, Interrupted: result.Interrupted}, nil
}

func encodeState(s *State) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeState(raw map[string]interface{}) (*State, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
