package clock

import (
	"fmt"
	"slices"

	"github.com/rs/xid"
)

// Output is a consumer's handle on a leaf of the tree.
type Output struct {
	id       string
	tree     *Tree
	leaf     NodeID
	callback Callback
	granted  *Request
	released bool
}

// Output attaches a new consumer to a leaf. The callback, which may be nil,
// receives the Pre and Post events of every rate change reaching the leaf.
func (t *Tree) Output(leaf NodeID, cb Callback) (*Output, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.leaf(leaf)
	if err != nil {
		return nil, err
	}

	o := &Output{
		id:       xid.New().String(),
		tree:     t,
		leaf:     leaf,
		callback: cb,
	}
	n.consumers = append(n.consumers, o)

	t.log.Debug("consumer attached", "output", n.Name, "consumer", o.id)

	return o, nil
}

// OutputByName attaches a new consumer to the leaf with the given name.
func (t *Tree) OutputByName(name string, cb Callback) (*Output, error) {
	id, ok := t.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: no output %q", ErrInvalidArgument, name)
	}

	return t.Output(id, cb)
}

// ID returns the unique identifier of the consumer.
func (o *Output) ID() string {
	return o.id
}

// Leaf returns the node the consumer is attached to.
func (o *Output) Leaf() NodeID {
	return o.leaf
}

// Granted returns the last request granted to this consumer.
func (o *Output) Granted() (Request, bool) {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()

	if o.granted == nil {
		return Request{}, false
	}

	return *o.granted, true
}

// Rate resolves the current rate of the output.
func (o *Output) Rate() (Freq, error) {
	return o.tree.Rate(o.leaf)
}

// RequestRate reconfigures the tree so that the output satisfies req together
// with every other consumer's request, preferring the state closest above the
// combined minimum frequency.
func (o *Output) RequestRate(req Request) (Freq, error) {
	return o.request(req, false)
}

// RequestRanked is like RequestRate but prefers the lowest-rank state,
// however far it sits from the requested bounds.
func (o *Output) RequestRanked(req Request) (Freq, error) {
	return o.request(req, true)
}

func (o *Output) request(req Request, ranked bool) (rate Freq, err error) {
	t := o.tree

	t.mu.Lock()
	defer t.mu.Unlock()

	leaf := t.nodes[o.leaf]

	defer func() {
		t.invoke(HookPosRequest, RequestOutcome{
			Output:  o.id,
			Leaf:    leaf.Name,
			Request: req,
			Ranked:  ranked,
			Rate:    rate,
			Err:     err,
		})
	}()

	if o.released {
		return 0, fmt.Errorf("%w: consumer %s released", ErrInvalidArgument, o.id)
	}

	req = req.normalized()
	if !req.valid() {
		return 0, fmt.Errorf("%w: empty window %s", ErrInvalidArgument, req)
	}

	others := t.combine(leaf, o)
	if !others.Overlaps(req) {
		return 0, fmt.Errorf("%w: %s conflicts with %s on %s",
			ErrRequestUnsatisfiable, req, others, leaf.Name)
	}

	candidate := others.Tighten(req)
	leaf.candidate = &candidate
	defer func() { leaf.candidate = nil }()

	if err := t.satisfy(leaf, candidate, ranked); err != nil {
		return 0, err
	}

	rate, err = t.resolveRate(leaf)
	if err != nil {
		return 0, err
	}

	leaf.combined = candidate
	o.granted = &req

	t.log.Debug("request granted", "output", leaf.Name, "consumer", o.id,
		"request", req, "combined", candidate, "rate", rate)

	return rate, nil
}

// satisfy reconfigures the tree for a candidate constraint, from a static
// state if one qualifies, by negotiation otherwise.
func (t *Tree) satisfy(leaf *node, c Constraint, ranked bool) error {
	if st := pickState(leaf.states, c, ranked); st != nil {
		return t.applyOutputState(leaf, st)
	}

	if !t.setRate {
		return fmt.Errorf("%w: no state of %s satisfies %s",
			ErrRequestUnsatisfiable, leaf.Name, c)
	}

	return t.negotiate(t.nodes[leaf.parent], Request(c), ranked)
}

// pickState returns the state admitted by c with the smallest distance above
// c.MinFreq, or with the smallest rank when ranked is set. The first of equal
// states wins.
func pickState(states []outputState, c Constraint, ranked bool) *outputState {
	var (
		best      *outputState
		bestScore uint64
	)

	for i := range states {
		st := &states[i]
		if !c.Admits(st.Freq, st.Rank) {
			continue
		}

		score := uint64(st.Freq - c.MinFreq)
		if ranked {
			score = uint64(st.Rank)
		}

		if best == nil || score < bestScore {
			best, bestScore = st, score
		}
	}

	return best
}

// combine folds the granted requests of every consumer of leaf except skip,
// starting from the loosest constraint.
func (t *Tree) combine(leaf *node, skip *Output) Constraint {
	c := Loosest()

	for _, o := range leaf.consumers {
		if o == skip || o.granted == nil {
			continue
		}

		c = c.Tighten(*o.granted)
	}

	return c
}

// ApplyState applies the static state with the given index.
func (o *Output) ApplyState(index int) error {
	t := o.tree

	t.mu.Lock()
	defer t.mu.Unlock()

	if o.released {
		return fmt.Errorf("%w: consumer %s released", ErrInvalidArgument, o.id)
	}

	leaf := t.nodes[o.leaf]
	if index < 0 || index >= len(leaf.states) {
		return fmt.Errorf("%w: %s has no state %d", ErrInvalidArgument, leaf.Name, index)
	}

	return t.applyOutputState(leaf, &leaf.states[index])
}

// ApplyNamedState applies the static state with the given name.
func (o *Output) ApplyNamedState(name string) error {
	leaf := o.tree.nodes[o.leaf]

	idx := slices.IndexFunc(leaf.states, func(st outputState) bool {
		return st.Name == name
	})
	if idx < 0 {
		return fmt.Errorf("%w: %s has no state %q", ErrInvalidArgument, leaf.Name, name)
	}

	return o.ApplyState(idx)
}

// Release detaches the consumer. Its request no longer constrains the leaf.
func (o *Output) Release() {
	t := o.tree

	t.mu.Lock()
	defer t.mu.Unlock()

	if o.released {
		return
	}

	leaf := t.nodes[o.leaf]
	leaf.consumers = slices.DeleteFunc(leaf.consumers, func(c *Output) bool {
		return c == o
	})
	leaf.combined = t.combine(leaf, nil)
	o.released = true
	o.granted = nil

	t.log.Debug("consumer released", "output", leaf.Name, "consumer", o.id)
}
