package rabbit

import (
	"sort"
	"sync"

	"github.com/go-thor/rabbit/errors"
)

// Registry maps stable method identifiers to their descriptors. Methods are
// registered once at startup and looked up by ID at call time.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]*MethodDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]*MethodDescriptor),
	}
}

// Register adds descriptors. It fails on an empty or duplicate ID without
// registering any of them.
func (r *Registry) Register(descs ...*MethodDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if d == nil || d.ID == "" {
			return errors.New(errors.ErrorCodeInvalidArgument, "method descriptor without id")
		}
		if _, ok := r.methods[d.ID]; ok || seen[d.ID] {
			return errors.Newf(errors.ErrorCodeAlreadyExists, "method %s already registered", d.ID)
		}
		seen[d.ID] = true
	}
	for _, d := range descs {
		r.methods[d.ID] = d
	}
	return nil
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (*MethodDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.methods[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrorCodeNotFound, errors.ErrMethodNotFound, id)
	}
	return d, nil
}

// Methods returns the registered IDs in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.methods))
	for id := range r.methods {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
