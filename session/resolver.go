package session

import (
	"sync"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
)

// NamespaceResolver maps dotted names to registered values. Namespaces
// are flat maps registered under their dotted prefix; the member "*"
// yields the whole namespace map as an opaque value.
type NamespaceResolver struct {
	namespaces map[string]map[string]any
	mu         sync.RWMutex
}

var _ bridge.Resolver = (*NamespaceResolver)(nil)

// NewNamespaceResolver creates an empty resolver.
func NewNamespaceResolver() *NamespaceResolver {
	return &NamespaceResolver{
		namespaces: make(map[string]map[string]any),
	}
}

// Register binds a namespace. Registering the same name again replaces
// the previous binding.
func (r *NamespaceResolver) Register(name string, members map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[name] = members
}

// Resolve implements bridgeruntime.Resolver.
func (r *NamespaceResolver) Resolve(namespace, member string) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.namespaces[namespace]
	if !ok {
		return nil, errors.NotFound(namespace, member)
	}
	if member == "*" {
		return ns, nil
	}
	v, ok := ns[member]
	if !ok {
		return nil, errors.NotFound(namespace, member)
	}
	return v, nil
}
