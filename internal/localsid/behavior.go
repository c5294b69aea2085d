// Package localsid manages locally instantiated SRv6 segment identifiers:
// the behaviors that can be bound to them and the table that owns each
// segment's End.NAT translation record.
package localsid

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/srv6nat/internal/core"
	"firestige.xyz/srv6nat/internal/srv6"
)

// Behavior is the static description of an endpoint function, as shown by
// behavior listings and CLI help.
type Behavior struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Keyword     string `yaml:"keyword"`
	Description string `yaml:"description"`
	Params      string `yaml:"params"`
	// NodeName is the data-plane node packets for this behavior are sent to.
	NodeName string `yaml:"node"`
}

// EndNAT describes the End.NAT behavior.
var EndNAT = Behavior{
	Name:        "SRv6-NAT",
	Keyword:     srv6.Keyword,
	Description: "Stateless /16 prefix translation of the IPv4 packet behind the SRH",
	Params:      "from <ip4_address> to <ip4_address>",
	NodeName:    "srv6-nat-rewrite",
}

// Registry assigns behavior ids. It is built once at start-up and handed
// to whatever needs the ids; there is no package-level instance.
type Registry struct {
	mu        sync.RWMutex
	byKeyword map[string]Behavior
	nextID    int
}

// NewRegistry creates an empty registry. Ids start after the built-in
// SRv6 behaviors (End, End.X, End.T, End.DX2/4/6, End.DT4/6, End.B6 ...).
func NewRegistry() *Registry {
	return &Registry{
		byKeyword: make(map[string]Behavior),
		nextID:    firstPluginBehaviorID,
	}
}

const firstPluginBehaviorID = 128

// Register adds b and returns it with its assigned id.
func (r *Registry) Register(b Behavior) (Behavior, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKeyword[b.Keyword]; exists {
		return Behavior{}, fmt.Errorf("%w: %s", core.ErrBehaviorExists, b.Keyword)
	}
	b.ID = r.nextID
	r.nextID++
	r.byKeyword[b.Keyword] = b
	return b, nil
}

// Get returns the behavior registered under keyword.
func (r *Registry) Get(keyword string) (Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byKeyword[keyword]
	return b, ok
}

// List returns every registered behavior ordered by id.
func (r *Registry) List() []Behavior {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Behavior, 0, len(r.byKeyword))
	for _, b := range r.byKeyword {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
