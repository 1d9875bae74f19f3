package checkpoint

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tarsy-labs/agentgw/ent"
	entcheckpoint "github.com/tarsy-labs/agentgw/ent/checkpoint"
)

const defaultListLimit = 15

// Store is the Checkpointer (C6), backed by the Checkpoint ent entity.
type Store struct {
	client *ent.Client
}

// NewStore wraps an ent client.
func NewStore(client *ent.Client) *Store {
	return &Store{client: client}
}

// Get returns a checkpoint tuple. If checkpointID is empty, the latest
// checkpoint for (userID, threadID) is returned — the SQL analogue of
// aget_tuple's ZREVRANGE-then-GET. Returns (nil, nil) when nothing matches,
// mirroring the original returning None rather than raising.
func (s *Store) Get(ctx context.Context, userID, threadID, checkpointID string) (*Tuple, error) {
	q := s.client.Checkpoint.Query().
		Where(entcheckpoint.UserID(userID), entcheckpoint.ThreadID(threadID))

	var row *ent.Checkpoint
	var err error
	if checkpointID != "" {
		row, err = q.Where(entcheckpoint.CheckpointID(checkpointID)).Only(ctx)
	} else {
		row, err = q.Order(ent.Desc(entcheckpoint.FieldCreatedAt)).First(ctx)
	}
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return toTuple(row), nil
}

// List returns up to limit checkpoints for a thread, newest first,
// skipping the one named by before (if any) — the SQL analogue of alist's
// ZREVRANGE walk. limit <= 0 uses defaultListLimit.
func (s *Store) List(ctx context.Context, userID, threadID, before string, limit int) ([]*Tuple, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.client.Checkpoint.Query().
		Where(entcheckpoint.UserID(userID), entcheckpoint.ThreadID(threadID)).
		Order(ent.Desc(entcheckpoint.FieldCreatedAt)).
		Limit(limit + 1). // fetch one extra in case `before` needs skipping
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	tuples := make([]*Tuple, 0, len(rows))
	for _, row := range rows {
		if before != "" && row.CheckpointID == before {
			continue
		}
		tuples = append(tuples, toTuple(row))
		if len(tuples) == limit {
			break
		}
	}
	return tuples, nil
}

// Put persists a full checkpoint, the analogue of aput: one row identity
// per (user_id, thread_id, checkpoint_id), parent_config sanitized before
// storage. checkpointID is generated if empty.
func (s *Store) Put(ctx context.Context, userID, threadID, checkpointID string, state, metadata, parentConfig map[string]interface{}) (string, error) {
	if checkpointID == "" {
		checkpointID = uuid.NewString()
	}

	err := s.client.Checkpoint.Create().
		SetID(fmt.Sprintf("%s:%s:%s", userID, threadID, checkpointID)).
		SetUserID(userID).
		SetThreadID(threadID).
		SetCheckpointID(checkpointID).
		SetState(state).
		SetMetadata(metadata).
		SetParentConfig(sanitizeParentConfig(parentConfig)).
		Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("put checkpoint: %w", err)
	}
	return checkpointID, nil
}

// PutWrites appends pending writes to an existing checkpoint row. A write
// whose (task_id, channel) matches an already-stored write replaces it in
// place, same as the original's task_id:idx hash field addressing;
// everything else accumulates until the next Put overwrites the row.
func (s *Store) PutWrites(ctx context.Context, userID, threadID, checkpointID string, writes []Write) error {
	row, err := s.client.Checkpoint.Query().
		Where(
			entcheckpoint.UserID(userID),
			entcheckpoint.ThreadID(threadID),
			entcheckpoint.CheckpointID(checkpointID),
		).
		Only(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint for writes: %w", err)
	}

	merged := mergeWrites(row.PendingWrites, writes)
	return row.Update().SetPendingWrites(merged).Exec(ctx)
}

func toTuple(row *ent.Checkpoint) *Tuple {
	return &Tuple{
		ThreadID:      row.ThreadID,
		CheckpointID:  row.CheckpointID,
		State:         row.State,
		Metadata:      row.Metadata,
		ParentConfig:  row.ParentConfig,
		PendingWrites: decodeWrites(row.PendingWrites),
	}
}

func decodeWrites(raw []map[string]interface{}) []Write {
	writes := make([]Write, 0, len(raw))
	for _, m := range raw {
		w := Write{Value: m["value"]}
		if v, ok := m["task_id"].(string); ok {
			w.TaskID = v
		}
		if v, ok := m["channel"].(string); ok {
			w.Channel = v
		}
		writes = append(writes, w)
	}
	return writes
}

func mergeWrites(existing []map[string]interface{}, fresh []Write) []map[string]interface{} {
	out := append([]map[string]interface{}(nil), existing...)
	for _, w := range fresh {
		encoded := map[string]interface{}{
			"task_id": w.TaskID,
			"channel": w.Channel,
			"value":   w.Value,
		}
		replaced := false
		for i, e := range out {
			if e["task_id"] == w.TaskID && e["channel"] == w.Channel {
				out[i] = encoded
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, encoded)
		}
	}
	return out
}
