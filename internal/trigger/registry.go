// Package trigger routes object writes to registered derived-view handlers.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// WriteEvent carries a committed object write to a handler, together with a
// scope rooted at the write's silo and structure instance.
type WriteEvent struct {
	Write model.Write
	Scope *store.Scope
}

// Handler reacts to a committed object write. Handlers must be idempotent:
// the same write may be delivered more than once.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ev WriteEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Func        func(ctx context.Context, ev WriteEvent) error
}

func (h HandlerFunc) Name() string { return h.HandlerName }

func (h HandlerFunc) Handle(ctx context.Context, ev WriteEvent) error {
	return h.Func(ctx, ev)
}

// matchKey selects handlers by the structure and object type of a write.
type matchKey struct {
	Structure string
	Type      string
}

// Registry maps (structure, object type) pairs to handlers. It is populated
// during startup and frozen before the first dispatch; registration after
// Freeze is an error.
type Registry struct {
	mu       sync.Mutex
	frozen   bool
	handlers map[matchKey][]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[matchKey][]Handler)}
}

// Register adds a handler for writes to the given structure and object type.
// Handlers fire in registration order.
func (r *Registry) Register(structure, objectType string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: registry is frozen", h.Name())
	}

	key := matchKey{Structure: structure, Type: objectType}
	r.handlers[key] = append(r.handlers[key], h)
	return nil
}

// Freeze marks the registry read-only. Dispatchers call this before starting
// workers so the handler set is fixed for the lifetime of the process.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// HandlersFor returns the handlers registered for a write's structure and
// object type, in registration order.
func (r *Registry) HandlersFor(w model.Write) []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handlers[matchKey{Structure: w.Ref.Structure, Type: w.Ref.Type}]
}
