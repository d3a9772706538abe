package reconcile

import (
	"fmt"
	"slices"
)

// Memory is an in-memory Container. It keeps nodes in append order and is
// used by the harness and the CLI to stand in for a view host.
type Memory struct {
	keys  []string
	nodes map[string]ViewNode
}

// NewMemory creates an empty container.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]ViewNode)}
}

// Append adds node under key. Keys must be unique.
func (m *Memory) Append(key string, node ViewNode) error {
	if _, ok := m.nodes[key]; ok {
		return fmt.Errorf("key %q already rendered", key)
	}
	m.keys = append(m.keys, key)
	m.nodes[key] = node
	return nil
}

// Remove deletes the node under key.
func (m *Memory) Remove(key string) error {
	idx := slices.Index(m.keys, key)
	if idx < 0 {
		return fmt.Errorf("key %q not rendered", key)
	}
	m.keys = slices.Delete(m.keys, idx, idx+1)
	delete(m.nodes, key)
	return nil
}

// Keys returns the rendered keys in container order.
func (m *Memory) Keys() []string {
	return slices.Clone(m.keys)
}

// Node returns the node under key.
func (m *Memory) Node(key string) (ViewNode, bool) {
	n, ok := m.nodes[key]
	return n, ok
}

// Len returns the number of rendered nodes.
func (m *Memory) Len() int {
	return len(m.keys)
}
