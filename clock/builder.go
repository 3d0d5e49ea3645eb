package clock

import (
	"errors"
	"fmt"
	"log/slog"
)

// Builder can be used to build a clock tree.
type Builder struct {
	runtime bool
	setRate bool
	logger  *slog.Logger
}

// MakeBuilder creates a new builder. By default the tree neither caches rates
// nor notifies consumers; static states are applied directly.
func MakeBuilder() Builder {
	return Builder{}
}

// WithRuntime enables rate caching and transactional reconfiguration with
// consumer notification.
func (b Builder) WithRuntime() Builder {
	b.runtime = true
	return b
}

// WithSetRate enables dynamic rate negotiation. It requires runtime support.
func (b Builder) WithSetRate() Builder {
	b.setRate = true
	return b
}

// WithLogger sets the logger the tree reports to.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.setRate && !b.runtime {
		panic("set-rate negotiation requires runtime support")
	}
}

// Build creates a Tree from a topology.
func (b Builder) Build(topo *Topology) (*Tree, error) {
	b.parametersMustBeValid()

	if len(topo.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, errors.Join(topo.errs...))
	}

	t := &Tree{
		HookableBase: NewHookableBase(),
		byName:       make(map[string]NodeID, len(topo.defs)),
		runtime:      b.runtime,
		setRate:      b.setRate,
		log:          b.logger,
	}
	if t.log == nil {
		t.log = slog.Default()
	}

	for name, id := range topo.index {
		t.byName[name] = id
	}

	var errs []error
	for i, def := range topo.defs {
		n, err := t.makeNode(NodeID(i), def)
		if err != nil {
			errs = append(errs, err)
		}
		t.nodes = append(t.nodes, n)
	}

	if len(errs) == 0 {
		errs = append(errs, t.link()...)
	}

	if len(errs) == 0 {
		errs = append(errs, t.mustBeAcyclic()...)
	}

	if len(errs) == 0 {
		errs = append(errs, t.resolveStates(topo)...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, errors.Join(errs...))
	}

	return t, nil
}

func (t *Tree) makeNode(id NodeID, def nodeDef) (*node, error) {
	n := &node{
		NodeSpec: def.spec,
		id:       id,
		kind:     def.kind,
		parent:   NoNode,
		combined: Loosest(),
	}

	var ok bool
	switch def.kind {
	case KindRoot:
		n.root, ok = def.driver.(RootDriver)
	case KindStandard:
		n.std, ok = def.driver.(StandardDriver)
	case KindMux:
		n.mux, ok = def.driver.(MuxDriver)
	case KindLeaf:
		ok = true
	}

	if !ok {
		return n, fmt.Errorf("%s node %q has no driver", def.kind, def.spec.Name)
	}

	n.gate, _ = def.driver.(Gate)

	switch def.kind {
	case KindRoot:
		t.roots = append(t.roots, id)
	case KindStandard, KindLeaf:
		pid, err := t.lookupParent(def.spec.Name, def.parent)
		if err != nil {
			return n, err
		}
		n.parent = pid
	case KindMux:
		if len(def.parents) == 0 {
			return n, fmt.Errorf("mux %q has no parents", def.spec.Name)
		}

		for _, p := range def.parents {
			pid, err := t.lookupParent(def.spec.Name, p)
			if err != nil {
				return n, err
			}
			n.parents = append(n.parents, pid)
		}
	}

	return n, nil
}

func (t *Tree) lookupParent(child, parent string) (NodeID, error) {
	id, ok := t.byName[parent]
	if !ok {
		return NoNode, fmt.Errorf("%q refers to unknown parent %q", child, parent)
	}

	return id, nil
}

// link fills in the children lists, in declaration order.
func (t *Tree) link() []error {
	var errs []error

	for _, n := range t.nodes {
		for _, pid := range n.upstream() {
			p := t.nodes[pid]
			if p.kind == KindLeaf {
				errs = append(errs,
					fmt.Errorf("%q cannot have leaf %q as parent", n.Name, p.Name))
				continue
			}

			if !containsID(p.children, n.id) {
				p.children = append(p.children, n.id)
			}
		}
	}

	return errs
}

func (t *Tree) mustBeAcyclic() []error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make([]int, len(t.nodes))

	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%q is its own ancestor", t.nodes[id].Name)
		case done:
			return nil
		}

		state[id] = visiting
		for _, pid := range t.nodes[id].upstream() {
			if err := visit(pid); err != nil {
				return err
			}
		}
		state[id] = done

		return nil
	}

	var errs []error
	for _, n := range t.nodes {
		if err := visit(n.id); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func (t *Tree) resolveStates(topo *Topology) []error {
	var errs []error

	for i, def := range topo.defs {
		n := t.nodes[i]
		for _, st := range def.states {
			resolved := outputState{OutputState: st}

			for _, s := range st.Settings {
				id, ok := t.byName[s.Node]
				if !ok || t.nodes[id].kind == KindLeaf {
					errs = append(errs, fmt.Errorf(
						"state %q of %q configures unknown clock %q",
						st.Name, n.Name, s.Node))
					continue
				}

				resolved.settings = append(resolved.settings, setting{
					node: id,
					cfg:  s.Config,
				})
			}

			n.states = append(n.states, resolved)
		}
	}

	return errs
}

// upstream lists every node the node can draw its rate from.
func (n *node) upstream() []NodeID {
	switch n.kind {
	case KindStandard, KindLeaf:
		return []NodeID{n.parent}
	case KindMux:
		return n.parents
	default:
		return nil
	}
}

func containsID(ids []NodeID, id NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}

	return false
}
