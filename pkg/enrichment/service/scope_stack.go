package service

import (
	"context"
	"sync"
)

// ScopeStack is a request-scoped stack of property overlays. Inner scopes
// shadow outer ones on key collision; exiting a scope restores whatever was
// visible before it was entered. A stack belongs to one logical call chain and
// must not be shared across unrelated ones, though pushes and reads are still
// guarded for the enrichment path running concurrently with scope changes.
type ScopeStack struct {
	mu     sync.Mutex
	frames []map[string]interface{}
}

func NewScopeStack() *ScopeStack {
	return &ScopeStack{}
}

// Enter pushes a property overlay and returns the closer that removes it.
// The closer truncates back to the depth it captured, so a scope leaked past
// its parent's exit cannot leave stale frames behind. Calling the closer more
// than once is a no-op.
func (s *ScopeStack) Enter(properties map[string]interface{}) func() {
	s.mu.Lock()
	depth := len(s.frames)
	frame := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		frame[k] = v
	}
	s.frames = append(s.frames, frame)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if len(s.frames) > depth {
				s.frames = s.frames[:depth]
			}
			s.mu.Unlock()
		})
	}
}

// Flatten merges the stack outermost-first, so the innermost value wins for a
// duplicated key. The result is a fresh map owned by the caller.
func (s *ScopeStack) Flatten() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]interface{})
	for _, frame := range s.frames {
		for k, v := range frame {
			merged[k] = v
		}
	}
	return merged
}

// Depth returns the number of active scopes.
func (s *ScopeStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type scopeStackKey struct{}

type correlationIdKey struct{}

// ContextWithScopeStack attaches a scope stack to the context so enrichment
// can pick up the overlays active for that call chain.
func ContextWithScopeStack(ctx context.Context, stack *ScopeStack) context.Context {
	return context.WithValue(ctx, scopeStackKey{}, stack)
}

func ScopeStackFromContext(ctx context.Context) (*ScopeStack, bool) {
	stack, ok := ctx.Value(scopeStackKey{}).(*ScopeStack)
	return stack, ok
}

// ContextWithCorrelationId pins the correlation id for every event emitted
// under this context.
func ContextWithCorrelationId(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, correlationIdKey{}, correlationId)
}

func CorrelationIdFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIdKey{}).(string)
	return id, ok && id != ""
}
