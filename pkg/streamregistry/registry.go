// Package streamregistry tracks the agent-graph invocations currently
// streaming on this process, so a concurrent request can cancel one or
// report on process health.
//
// Unlike a polling worker pool, a stream here is not claimed from a queue:
// it is registered for the duration of one synchronous POST /stream call
// (or its resume) and unregistered when that call returns. The registry
// exists purely to let CancelThread and Health reach into goroutines this
// process already owns.
package streamregistry

import (
	"context"
	"fmt"
	"sync"
)

// key identifies one in-flight stream by the (user, thread) pair
// agent-graph execution is scoped to.
type key struct {
	userID   string
	threadID string
}

// Registry stores cancel functions for active (user, thread) stream
// invocations on this process.
type Registry struct {
	mu      sync.RWMutex
	active  map[key]context.CancelFunc
	podName string
}

// New creates an empty Registry. podName identifies this process in
// Health output when the gateway runs as multiple replicas behind a
// shared Postgres.
func New(podName string) *Registry {
	return &Registry{
		active:  make(map[key]context.CancelFunc),
		podName: podName,
	}
}

// Register stores cancel for the duration of one stream invocation.
// The caller must call Unregister when the invocation returns, including
// on error paths — typically via defer.
func (r *Registry) Register(userID, threadID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[key{userID, threadID}] = cancel
}

// Unregister removes the cancel function for a finished invocation.
func (r *Registry) Unregister(userID, threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key{userID, threadID})
}

// Cancel triggers context cancellation for a (user, thread) stream running
// on this process. Returns true if a matching invocation was found here.
// A caller that gets false should assume the stream is on another replica
// or already finished — cancellation there is out of scope for this process.
func (r *Registry) Cancel(userID, threadID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cancel, ok := r.active[key{userID, threadID}]
	if !ok {
		return false
	}
	cancel()
	return true
}

// ActiveCount returns the number of streams currently registered on this
// process.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Health reports process-local stream activity.
type Health struct {
	PodName        string `json:"pod_name"`
	ActiveStreams  int    `json:"active_streams"`
}

// Health returns the current health snapshot for this process's registry.
func (r *Registry) Health() *Health {
	return &Health{
		PodName:       r.podName,
		ActiveStreams: r.ActiveCount(),
	}
}

// String renders a key for logging.
func (k key) String() string {
	return fmt.Sprintf("%s/%s", k.userID, k.threadID)
}
