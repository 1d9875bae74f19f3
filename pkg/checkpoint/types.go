// Package checkpoint implements the Checkpointer (C6): durable graph-state
// snapshots keyed by (user_id, thread_id, checkpoint_id), with ordered
// per-thread history and pending writes that survive until the next full
// Put. Re-expresses the original Redis-backed saver over the Checkpoint ent
// entity: a SQL (user_id, thread_id, created_at) index stands in for the
// Redis ZSET, and JSON (encoding/json) stands in for pickle+base64.
package checkpoint

// Tuple is one durable snapshot of graph state, the Go analogue of
// langgraph's CheckpointTuple.
type Tuple struct {
	ThreadID      string
	CheckpointID  string
	State         map[string]interface{}
	Metadata      map[string]interface{}
	ParentConfig  map[string]interface{}
	PendingWrites []Write
}

// Write is one pending write accumulated between full checkpoints — a task
// writing to a graph channel before the next Put supersedes it.
type Write struct {
	TaskID  string      `json:"task_id"`
	Channel string      `json:"channel"`
	Value   interface{} `json:"value"`
}

// sanitizeParentConfig strips keys that held live, unpicklable objects in
// the original (tool_registry, callbacks) before the config is persisted.
// Go has no such runtime-handle-in-a-map problem, but the keys are stripped
// anyway: a stored parent_config is replayed into a fresh request context,
// and a stale server-side handle from a prior process has no business
// surviving the round trip.
func sanitizeParentConfig(config map[string]interface{}) map[string]interface{} {
	if config == nil {
		return nil
	}
	out := make(map[string]interface{}, len(config))
	for k, v := range config {
		if k == "callbacks" {
			continue
		}
		if k == "configurable" {
			if configurable, ok := v.(map[string]interface{}); ok {
				cleaned := make(map[string]interface{}, len(configurable))
				for ck, cv := range configurable {
					if ck == "tool_registry" {
						continue
					}
					cleaned[ck] = cv
				}
				out[k] = cleaned
				continue
			}
		}
		out[k] = v
	}
	return out
}
