package bridge

import (
	"sort"
	"sync"
)

// Namespace looks up classes or protocols by name and remembers the names
// that resolved.
type Namespace struct {
	kind   string
	lookup func(string) (*Object, error)

	mu    sync.RWMutex
	known map[string]struct{}
}

func newNamespace(kind string, lookup func(string) (*Object, error)) *Namespace {
	return &Namespace{kind: kind, lookup: lookup, known: make(map[string]struct{})}
}

// Lookup resolves name. Unknown names fail with ErrNotFound and are not
// remembered.
func (n *Namespace) Lookup(name string) (*Object, error) {
	o, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.known[name] = struct{}{}
	n.mu.Unlock()
	return o, nil
}

// Known returns the names resolved so far, sorted.
func (n *Namespace) Known() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.known))
	for name := range n.known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n *Namespace) String() string {
	return n.kind + " namespace"
}
