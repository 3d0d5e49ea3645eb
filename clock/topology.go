package clock

import "fmt"

type nodeDef struct {
	spec    NodeSpec
	kind    Kind
	parent  string
	parents []string
	driver  any
	states  []OutputState
}

// Topology is the static description of a clock tree: its nodes, their
// drivers, and the output states of its leaves. Parents are referenced by
// name and may be declared in any order. Errors are reported by
// Builder.Build.
type Topology struct {
	defs  []nodeDef
	index map[string]NodeID
	errs  []error
}

// NewTopology creates an empty Topology.
func NewTopology() *Topology {
	return &Topology{index: make(map[string]NodeID)}
}

func (t *Topology) add(def nodeDef) NodeID {
	id := NodeID(len(t.defs))

	switch {
	case def.spec.Name == "":
		t.errs = append(t.errs, fmt.Errorf("node %d has no name", id))
	case t.declared(def.spec.Name):
		t.errs = append(t.errs,
			fmt.Errorf("node %q declared twice", def.spec.Name))
	default:
		t.index[def.spec.Name] = id
	}

	t.defs = append(t.defs, def)

	return id
}

func (t *Topology) declared(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddRoot declares a parentless clock source.
func (t *Topology) AddRoot(spec NodeSpec, drv RootDriver) NodeID {
	return t.add(nodeDef{spec: spec, kind: KindRoot, driver: drv})
}

// AddStandard declares a node derived from a single parent.
func (t *Topology) AddStandard(
	spec NodeSpec,
	parent string,
	drv StandardDriver,
) NodeID {
	return t.add(nodeDef{
		spec:   spec,
		kind:   KindStandard,
		parent: parent,
		driver: drv,
	})
}

// AddMux declares a multiplexer. The order of parents defines the input
// indices the driver uses.
func (t *Topology) AddMux(
	spec NodeSpec,
	parents []string,
	drv MuxDriver,
) NodeID {
	return t.add(nodeDef{
		spec:    spec,
		kind:    KindMux,
		parents: append([]string(nil), parents...),
		driver:  drv,
	})
}

// AddLeaf declares an output node that consumers attach to.
func (t *Topology) AddLeaf(
	spec NodeSpec,
	parent string,
	states ...OutputState,
) NodeID {
	return t.add(nodeDef{
		spec:   spec,
		kind:   KindLeaf,
		parent: parent,
		states: append([]OutputState(nil), states...),
	})
}
