package clock

import (
	"fmt"
	"log/slog"
	"sync"
)

// Tree owns every node of a clock tree together with its runtime state. All
// public methods are serialized by a single lock that covers the whole tree.
type Tree struct {
	*HookableBase

	mu sync.Mutex

	nodes  []*node
	byName map[string]NodeID
	roots  []NodeID

	runtime bool
	setRate bool
	log     *slog.Logger
}

// Runtime reports whether the tree caches rates and notifies consumers.
func (t *Tree) Runtime() bool {
	return t.runtime
}

// CanSetRate reports whether dynamic negotiation is available.
func (t *Tree) CanSetRate() bool {
	return t.setRate
}

// NumNodes returns the number of nodes in the tree.
func (t *Tree) NumNodes() int {
	return len(t.nodes)
}

// Roots returns the parentless nodes in declaration order.
func (t *Tree) Roots() []NodeID {
	return append([]NodeID(nil), t.roots...)
}

// Lookup finds a node by name.
func (t *Tree) Lookup(name string) (NodeID, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Name returns the name of a node.
func (t *Tree) Name(id NodeID) string {
	n, err := t.node(id)
	if err != nil {
		return ""
	}

	return n.Name
}

// Kind returns the variant of a node.
func (t *Tree) Kind(id NodeID) (Kind, error) {
	n, err := t.node(id)
	if err != nil {
		return 0, err
	}

	return n.kind, nil
}

// Parent returns the single parent of a standard node or a leaf.
func (t *Tree) Parent(id NodeID) (NodeID, error) {
	n, err := t.node(id)
	if err != nil {
		return NoNode, err
	}

	if n.kind != KindStandard && n.kind != KindLeaf {
		return NoNode, fmt.Errorf("%w: %s node %q has no single parent",
			ErrUnsupported, n.kind, n.Name)
	}

	return n.parent, nil
}

// Parents returns the candidate parents of a mux, ordered by input index.
func (t *Tree) Parents(id NodeID) ([]NodeID, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, err
	}

	if n.kind != KindMux {
		return nil, fmt.Errorf("%w: %q is not a mux", ErrUnsupported, n.Name)
	}

	return append([]NodeID(nil), n.parents...), nil
}

// Children returns the nodes fed by a node, in declaration order.
func (t *Tree) Children(id NodeID) ([]NodeID, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, err
	}

	return append([]NodeID(nil), n.children...), nil
}

// ActiveParent returns the input index a mux currently selects, or
// Disconnected.
func (t *Tree) ActiveParent(id NodeID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return Disconnected, err
	}

	if n.kind != KindMux {
		return Disconnected, fmt.Errorf("%w: %q is not a mux",
			ErrUnsupported, n.Name)
	}

	return t.activeParent(n)
}

// States returns the static output states of a leaf.
func (t *Tree) States(id NodeID) ([]OutputState, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, err
	}

	states := make([]OutputState, 0, len(n.states))
	for _, st := range n.states {
		states = append(states, st.OutputState)
	}

	return states, nil
}

// Constraint returns the committed combined constraint of a leaf.
func (t *Tree) Constraint(id NodeID) (Constraint, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.leaf(id)
	if err != nil {
		return Constraint{}, err
	}

	return n.combined, nil
}

// Usage returns the gating reference count of a node.
func (t *Tree) Usage(id NodeID) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return 0, err
	}

	return n.usage, nil
}

// CachedRate returns the cached rate of a node, 0 if unresolved.
func (t *Tree) CachedRate(id NodeID) (Freq, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return 0, err
	}

	return n.rate, nil
}

func (t *Tree) node(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, fmt.Errorf("%w: no node %d", ErrInvalidArgument, id)
	}

	return t.nodes[id], nil
}

func (t *Tree) leaf(id NodeID) (*node, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, err
	}

	if n.kind != KindLeaf {
		return nil, fmt.Errorf("%w: %q is not an output", ErrInvalidArgument, n.Name)
	}

	return n, nil
}

func (t *Tree) activeParent(n *node) (int, error) {
	idx, err := n.mux.ActiveParent()
	if err != nil {
		return Disconnected, driverError(n, "get parent", err)
	}

	if idx == Disconnected {
		return Disconnected, nil
	}

	if idx < 0 || idx >= len(n.parents) {
		return Disconnected, fmt.Errorf("%w: %s reports input %d of %d",
			ErrHardwareFailure, n.Name, idx, len(n.parents))
	}

	return idx, nil
}

func (t *Tree) invoke(pos *HookPos, item any) {
	if t.NumHooks() == 0 {
		return
	}

	t.InvokeHook(HookCtx{Domain: t, Pos: pos, Item: item})
}
