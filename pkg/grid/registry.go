package grid

import (
	"slices"
	"strings"
)

// Node is one member of the grid roster. Names are the sole identity key
// across the wire; the address is the base URL peers are reached at.
type Node struct {
	Name           string `mapstructure:"name"            yaml:"name"`
	Address        string `mapstructure:"address"         yaml:"address"`
	TelegramHandle string `mapstructure:"telegramHandle"  yaml:"telegramHandle"`
}

// Registry is the static roster loaded at startup. The entry matching the
// local node's name is removed immediately, so Peers only ever yields true
// peers; the local node is synthesized separately in responses.
//
// The registry is immutable after construction and safe for concurrent use.
type Registry struct {
	self  Node
	peers []Node
}

// NewRegistry builds a registry for the node named self from the configured
// roster. Any roster entry whose name equals self is dropped; self's own
// metadata (address, handle) is taken from that entry if present.
func NewRegistry(self string, roster []Node) *Registry {
	r := &Registry{
		self:  Node{Name: self},
		peers: make([]Node, 0, len(roster)),
	}

	for _, node := range roster {
		if node.Name == self {
			r.self = node
			continue
		}
		r.peers = append(r.peers, node)
	}

	slices.SortFunc(r.peers, func(a, b Node) int {
		return strings.Compare(a.Name, b.Name)
	})

	return r
}

// Self returns the local node's roster entry.
func (r *Registry) Self() Node { return r.self }

// Peers returns every roster member except the local node, sorted by name.
// The returned slice must not be modified.
func (r *Registry) Peers() []Node { return r.peers }

// Lookup returns the roster entry for name. The local node is included.
func (r *Registry) Lookup(name string) (Node, bool) {
	if name == r.self.Name {
		return r.self, true
	}
	for _, node := range r.peers {
		if node.Name == name {
			return node, true
		}
	}
	return Node{}, false
}

// IsKnown reports whether name is a roster member, counting the local node.
func (r *Registry) IsKnown(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}
