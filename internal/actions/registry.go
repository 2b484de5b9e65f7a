// Package actions provides the named action registry and its invoker.
package actions

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Action represents a named, invokable unit of work
type Action interface {
	Name() string
	Execute(ctx context.Context, args map[string]any) error
}

// FuncAction adapts a Go function to an Action.
type FuncAction struct {
	name string
	fn   func(ctx context.Context, args map[string]any) error
}

// NewFuncAction creates a FuncAction.
func NewFuncAction(name string, fn func(ctx context.Context, args map[string]any) error) *FuncAction {
	return &FuncAction{name: name, fn: fn}
}

func (a *FuncAction) Name() string { return a.name }

func (a *FuncAction) Execute(ctx context.Context, args map[string]any) error {
	return a.fn(ctx, args)
}

// Registry holds all registered actions
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates a new action registry
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// Register adds an action to the registry
func (r *Registry) Register(action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if action.Name() == "" {
		return fmt.Errorf("action name must not be empty")
	}
	if _, exists := r.actions[action.Name()]; exists {
		return fmt.Errorf("action %q already registered", action.Name())
	}

	r.actions[action.Name()] = action
	return nil
}

// Get retrieves an action by name
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	action, exists := r.actions[name]
	return action, exists
}

// Names returns all registered action names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
