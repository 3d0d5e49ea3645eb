package clock

// NodeStatus is a point-in-time view of a node, for reporting.
type NodeStatus struct {
	ID        NodeID      `json:"id"`
	Name      string      `json:"name"`
	Kind      string      `json:"kind"`
	Rate      Freq        `json:"rate"`
	Usage     int         `json:"usage"`
	Parents   []string    `json:"parents,omitempty"`
	Active    int         `json:"active"` // mux input, Disconnected otherwise
	Consumers int         `json:"consumers,omitempty"`
	States    []string    `json:"states,omitempty"`
	Combined  *Constraint `json:"combined,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Snapshot reports the status of every node in declaration order. Rates are
// resolved, and cached when the tree runs with runtime support.
func (t *Tree) Snapshot() []NodeStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	statuses := make([]NodeStatus, 0, len(t.nodes))
	for _, n := range t.nodes {
		statuses = append(statuses, t.status(n))
	}

	return statuses
}

// Status reports the status of one node.
func (t *Tree) Status(id NodeID) (NodeStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return NodeStatus{}, err
	}

	return t.status(n), nil
}

func (t *Tree) status(n *node) NodeStatus {
	s := NodeStatus{
		ID:     n.id,
		Name:   n.Name,
		Kind:   n.kind.String(),
		Usage:  n.usage,
		Active: Disconnected,
	}

	for _, pid := range n.upstream() {
		s.Parents = append(s.Parents, t.nodes[pid].Name)
	}

	rate, err := t.resolveRate(n)
	if err != nil {
		s.Error = err.Error()
	}
	s.Rate = rate

	if n.kind == KindMux {
		if idx, err := t.activeParent(n); err == nil {
			s.Active = idx
		}
	}

	if n.kind == KindLeaf {
		c := n.combined
		s.Combined = &c
		s.Consumers = len(n.consumers)

		for _, st := range n.states {
			s.States = append(s.States, st.Name)
		}
	}

	return s
}
