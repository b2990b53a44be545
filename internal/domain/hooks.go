// Package domain holds cross-cutting domain plumbing shared by the ledger packages.
package domain

import (
	"context"
	"sync"
)

// HookEvent represents a ledger lifecycle event.
type HookEvent string

const (
	AfterPost HookEvent = "after_post"
	AfterVoid HookEvent = "after_void"
)

// Hook is a function executed on a lifecycle event.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores lifecycle hooks for an entity type.
// Registration normally happens once during wiring, but the registry is
// safe for concurrent use.
type HookRegistry[T any] struct {
	mu    sync.RWMutex
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes all hooks for the specified event, stopping at the first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	r.mu.RLock()
	hooks := r.hooks[event]
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// OnAfterPost registers a hook to run after a movement is appended.
func (r *HookRegistry[T]) OnAfterPost(hook Hook[T]) {
	r.On(AfterPost, hook)
}

// OnAfterVoid registers a hook to run after a movement is voided.
func (r *HookRegistry[T]) OnAfterVoid(hook Hook[T]) {
	r.On(AfterVoid, hook)
}
