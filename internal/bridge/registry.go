package bridge

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ResultSender is implemented by live sessions that can still accept tool
// results for their pending exec requests.
type ResultSender interface {
	// ID returns the short session id embedded in tool_call ids.
	ID() string

	// SendToolResult routes an OpenAI tool result back to the pending
	// exec request identified by toolCallID.
	SendToolResult(ctx context.Context, toolCallID, content string) error
}

// Registry tracks live sessions so an inbound OpenAI tool result can be
// routed back to the session that issued the exec request. Sessions
// register for their own lifetime only; a lookup miss is not an error
// (fresh-session mode flattens the result into the next prompt instead).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]ResultSender
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]ResultSender)}
}

var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// GetGlobalRegistry returns the process-wide session registry.
func GetGlobalRegistry() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Register adds a live session.
func (r *Registry) Register(s ResultSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Unregister removes a session; its pending exec requests are dropped.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Deliver routes one tool result to the owning session. Unknown session or
// tool_call ids are logged and dropped; they never fail the caller.
func (r *Registry) Deliver(ctx context.Context, toolCallID, content string) bool {
	sid, ok := ParseSessionID(toolCallID)
	if !ok {
		log.Debugf("bridge: tool result with unparseable id %q, dropping", toolCallID)
		return false
	}
	r.mu.RLock()
	sender := r.sessions[sid]
	r.mu.RUnlock()
	if sender == nil {
		log.Debugf("bridge: no live session %q for tool result %q, dropping", sid, toolCallID)
		return false
	}
	if err := sender.SendToolResult(ctx, toolCallID, content); err != nil {
		log.Warnf("bridge: failed to deliver tool result %q: %v", toolCallID, err)
		return false
	}
	return true
}
