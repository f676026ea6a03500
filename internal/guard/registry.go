package guard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateOrder is the configuration error raised when two guards
// claim the same execution order. It is fatal at registration time:
// a duplicate order is a programming mistake, not a runtime condition.
var ErrDuplicateOrder = errors.New("guard order already registered")

// Entry binds an execution order to a named guard factory.
type Entry struct {
	Order int
	Name  string
	New   Factory
}

// Registry maps execution orders to guard factories. Ordering is a
// first-class, explicit contract: guard authors declare where in the
// chain they run, and retrieval is always ascending by order regardless
// of registration order.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]Entry)}
}

// Register binds order to a guard factory. Registering an order twice
// fails with ErrDuplicateOrder naming both the existing and incoming
// guard.
func (r *Registry) Register(order int, name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[order]; ok {
		return fmt.Errorf("%w: order %d held by %s, cannot register %s",
			ErrDuplicateOrder, order, existing.Name, name)
	}
	r.entries[order] = Entry{Order: order, Name: name, New: f}
	return nil
}

// MustRegister is Register that panics on duplicate orders, for use in
// static chain definitions where a duplicate means broken wiring.
func (r *Registry) MustRegister(order int, name string, f Factory) {
	if err := r.Register(order, name, f); err != nil {
		panic(err)
	}
}

// Sorted returns all entries ascending by order.
func (r *Registry) Sorted() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Orders returns the registered execution orders, ascending.
func (r *Registry) Orders() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.entries))
	for order := range r.entries {
		out = append(out, order)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of registered guards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset empties the registry so a subsequent RegisterBuiltins (or any
// explicit Register calls) starts from a clean slate. Tests use this
// between cases.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[int]Entry)
}

// defaultRegistry is the process-wide registry the pipeline uses unless
// a caller supplies its own.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
