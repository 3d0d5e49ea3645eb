package clock

import "fmt"

// Kind is the variant of a clock node.
type Kind int

// Clock node variants.
const (
	KindRoot Kind = iota
	KindStandard
	KindMux
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindStandard:
		return "standard"
	case KindMux:
		return "mux"
	case KindLeaf:
		return "leaf"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// NodeID identifies a node within its Tree.
type NodeID int

// NoNode is the NodeID of no node.
const NoNode NodeID = -1

// NodeSpec holds the static, driver-independent properties of a node.
type NodeSpec struct {
	Name string

	// Rank is the fixed cost of using the node.
	Rank Rank

	// RankFactor is the cost per Hz of the node's output rate.
	RankFactor Rank
}

// Setting is one step of a static output state: the configuration to apply
// to a named node.
type Setting struct {
	Node   string
	Config any
}

// OutputState is a precomputed bundle of settings known to produce Freq at
// the given Rank. A state without settings is reached by negotiation.
type OutputState struct {
	Name     string
	Freq     Freq
	Rank     Rank
	Settings []Setting
}

type setting struct {
	node NodeID
	cfg  any
}

type outputState struct {
	OutputState
	settings []setting
}

type node struct {
	NodeSpec

	id       NodeID
	kind     Kind
	parent   NodeID
	parents  []NodeID
	children []NodeID

	root RootDriver
	std  StandardDriver
	mux  MuxDriver
	gate Gate

	states []outputState

	// Runtime data, guarded by Tree.mu.
	rate      Freq
	usage     int
	consumers []*Output
	combined  Constraint
	candidate *Constraint
	stateRank *Rank
}

func (n *node) configurer() Configurer {
	switch n.kind {
	case KindRoot:
		return n.root
	case KindStandard:
		return n.std
	case KindMux:
		return n.mux
	default:
		return nil
	}
}

// cost returns the rank the node contributes at rate.
func (n *node) cost(rate Freq) Rank {
	return cost(n.Rank, n.RankFactor, rate)
}

// effectiveConstraint is the constraint Query checks run against: the
// candidate of an in-flight request if there is one, the committed combined
// constraint otherwise.
func (n *node) effectiveConstraint() Constraint {
	if n.candidate != nil {
		return *n.candidate
	}

	return n.combined
}
