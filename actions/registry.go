package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/types"
)

// Action is an invocable unit of work bound to a node. It receives the
// current workflow state and returns a partial update: a mapping of
// zero or more keys to new values, shallow-merged into the state by the
// engine. Actions may perform arbitrary work and may fail; the registry
// performs no error handling of its own.
type Action func(ctx context.Context, state types.State) (types.State, error)

// Registry maps action names to actions. Registration is expected to
// happen during process setup, before runs start; lookups happen on
// every node visit of every run.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		actions: make(map[string]Action),
		logger:  logger.With(zap.String("component", "action_registry")),
	}
}

// Register associates name with action. Re-registering an existing
// name silently overwrites it (last write wins): this is a deliberate
// simplification, chosen over erroring so that test fixtures and
// example suites can re-register freely.
func (r *Registry) Register(name string, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		r.logger.Debug("overwriting registered action", zap.String("action", name))
	}
	r.actions[name] = action
}

// Resolve returns the action registered under name. A missing name
// yields an ACTION_NOT_FOUND error listing the registered names.
func (r *Registry) Resolve(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, types.NewError(types.ErrActionNotFound,
			fmt.Sprintf("no action registered under %q (registered: %s)",
				name, strings.Join(r.namesLocked(), ", ")))
	}
	return action, nil
}

// Exists reports whether an action is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// Unregister removes the action registered under name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, name)
}

// Clear removes all registered actions.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = make(map[string]Action)
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
