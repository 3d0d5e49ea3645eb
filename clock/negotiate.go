package clock

import (
	"errors"
	"fmt"
)

// Round returns the best rate a node can be negotiated to for req, and the
// rank accumulated from the root to the node at that rate. It does not change
// any hardware. When preferRank is set, the cheapest admissible choice wins
// over the most accurate one.
func (t *Tree) Round(id NodeID, req Request, preferRank bool) (Freq, Rank, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return 0, 0, err
	}

	if !t.setRate {
		return 0, 0, fmt.Errorf("%w: rate negotiation is disabled", ErrUnsupported)
	}

	req = req.normalized()
	if !req.valid() {
		return 0, 0, fmt.Errorf("%w: empty window %s", ErrInvalidArgument, req)
	}

	return t.round(n, req, preferRank, NoNode)
}

type choice struct {
	index int
	rate  Freq
	rank  Rank
}

func (t *Tree) round(
	n *node,
	req Request,
	preferRank bool,
	except NodeID,
) (Freq, Rank, error) {
	switch n.kind {
	case KindMux:
		best, err := t.bestParent(n, req, preferRank, except)
		if err != nil {
			return 0, 0, err
		}

		return best.rate, best.rank, nil

	case KindRoot:
		current, err := t.resolveRate(n)
		if err != nil {
			return 0, 0, err
		}

		rate, err := n.root.RoundRate(req.MaxFreq)
		if errors.Is(err, ErrUnsupported) {
			rate, err = current, nil
		}
		if err != nil {
			return 0, 0, driverError(n, "round rate", err)
		}

		rank := n.cost(rate)
		if err := t.notifySubtree(n, current, rate, rank, PhaseQuery, except); err != nil {
			return 0, 0, err
		}

		return rate, rank, nil

	case KindStandard:
		parentRate, parentRank, err := t.round(t.nodes[n.parent], req, preferRank, n.id)
		if err != nil {
			return 0, 0, err
		}

		current, err := t.resolveRate(n)
		if err != nil {
			return 0, 0, err
		}

		rate, err := t.roundStandard(n, req, parentRate)
		if err != nil {
			return 0, 0, err
		}

		rank := parentRank.Add(n.cost(rate))
		if err := t.notifySubtree(n, current, rate, rank, PhaseQuery, except); err != nil {
			return 0, 0, err
		}

		return rate, rank, nil

	default:
		return t.round(t.nodes[n.parent], req, preferRank, except)
	}
}

// roundStandard asks a standard node for its best rate from parentRate. A
// node that cannot round keeps its current transfer function.
func (t *Tree) roundStandard(n *node, req Request, parentRate Freq) (Freq, error) {
	rate, err := n.std.RoundRate(req.MaxFreq, parentRate)
	if errors.Is(err, ErrUnsupported) {
		rate, err = n.std.RecalcRate(parentRate)
	}
	if err != nil {
		return 0, driverError(n, "round rate", err)
	}

	return rate, nil
}

// bestParent rounds every input of a mux and picks the winner. Inputs the
// driver rejects, or whose rate the mux's subtree rejects, are skipped. In
// accuracy mode the admissible input closest to req.MaxFreq wins; in rank
// mode the admissible input with the lowest rank wins. If no input is
// admissible, the input closest to req.MaxFreq is used as a best effort.
// Ties go to the lowest input index.
func (t *Tree) bestParent(
	mux *node,
	req Request,
	preferRank bool,
	except NodeID,
) (choice, error) {
	current, err := t.resolveRate(mux)
	if err != nil {
		return choice{}, err
	}

	var (
		best, closest         choice
		haveBest, haveClosest bool
	)

	for i, pid := range mux.parents {
		rate, parentRank, err := t.round(t.nodes[pid], req, preferRank, mux.id)
		if err != nil {
			t.log.Debug("mux input rejected",
				"mux", mux.Name, "input", i, "reason", err)
			continue
		}

		if err := mux.mux.ValidateParent(rate, i); err != nil {
			t.log.Debug("mux input incompatible",
				"mux", mux.Name, "input", i, "rate", rate, "reason", err)
			continue
		}

		rank := parentRank.Add(mux.cost(rate))
		err = t.notifySubtree(mux, current, rate, rank, PhaseQuery, except)
		if err != nil {
			t.log.Debug("mux input refused downstream",
				"mux", mux.Name, "input", i, "rate", rate, "reason", err)
			continue
		}

		c := choice{index: i, rate: rate, rank: rank}

		if req.admits(rate, rank) && (!haveBest || c.beats(best, req, preferRank)) {
			best, haveBest = c, true
		}

		if !haveClosest ||
			req.MaxFreq.Distance(rate) < req.MaxFreq.Distance(closest.rate) {
			closest, haveClosest = c, true
		}
	}

	switch {
	case haveBest:
		return best, nil
	case haveClosest:
		t.log.Warn("no mux input satisfies request, using closest",
			"mux", mux.Name, "request", req, "input", closest.index,
			"rate", closest.rate)
		return closest, nil
	default:
		return choice{}, fmt.Errorf("%w: no input of %s produces a usable rate",
			ErrRequestUnsatisfiable, mux.Name)
	}
}

func (c choice) beats(other choice, req Request, preferRank bool) bool {
	if preferRank {
		return c.rank < other.rank
	}

	return req.MaxFreq.Distance(c.rate) < req.MaxFreq.Distance(other.rate)
}

// negotiate reconfigures n for req. The whole path is rounded first, so
// that a rejection anywhere below leaves every node untouched.
func (t *Tree) negotiate(n *node, req Request, preferRank bool) error {
	if _, _, err := t.round(n, req, preferRank, NoNode); err != nil {
		return err
	}

	_, err := t.set(n, req, preferRank, NoNode)

	return err
}

// set commits what round finds for req. Parents are always committed before
// their children, since a child's achievable rate depends on its parent's.
// Nodes whose rate does not change are not written.
func (t *Tree) set(
	n *node,
	req Request,
	preferRank bool,
	except NodeID,
) (Freq, error) {
	switch n.kind {
	case KindMux:
		return t.setMux(n, req, preferRank, except)
	case KindRoot:
		return t.setRoot(n, req, preferRank, except)
	case KindStandard:
		return t.setStandard(n, req, preferRank, except)
	default:
		return 0, fmt.Errorf("%w: %s", ErrNotConfigurable, n.Name)
	}
}

func (t *Tree) setMux(
	n *node,
	req Request,
	preferRank bool,
	except NodeID,
) (Freq, error) {
	best, err := t.bestParent(n, req, preferRank, except)
	if err != nil {
		return 0, err
	}

	parent := t.nodes[n.parents[best.index]]
	if _, err := t.set(parent, req, preferRank, n.id); err != nil {
		return 0, err
	}

	active, err := t.activeParent(n)
	if err != nil {
		return 0, err
	}

	current, err := t.resolveRate(n)
	if err != nil {
		return 0, err
	}

	// A connected parent already announced its change through the mux.
	if active == best.index {
		return current, nil
	}

	next, err := t.resolveRate(parent)
	if err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, next, best.rank, PhasePre, NoNode); err != nil {
		return 0, err
	}

	if err := t.switchInput(n, best.index, func() error {
		return t.write(n, "select parent", best.index, func() error {
			return n.mux.SelectParent(best.index)
		})
	}); err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, next, best.rank, PhasePost, NoNode); err != nil {
		return 0, err
	}

	t.log.Debug("mux switched", "mux", n.Name, "input", best.index, "rate", next)

	return next, nil
}

func (t *Tree) setRoot(
	n *node,
	req Request,
	preferRank bool,
	except NodeID,
) (Freq, error) {
	current, err := t.resolveRate(n)
	if err != nil {
		return 0, err
	}

	rate, rank, err := t.round(n, req, preferRank, except)
	if err != nil {
		return 0, err
	}

	if rate == current {
		return current, nil
	}

	if err := t.notifySubtree(n, current, rate, rank, PhasePre, NoNode); err != nil {
		return 0, err
	}

	var achieved Freq
	if err := t.write(n, "set rate", rate, func() error {
		var err error
		achieved, err = n.root.SetRate(rate)
		return notConfigurable(err)
	}); err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, achieved, rank, PhasePost, NoNode); err != nil {
		return 0, err
	}

	return achieved, nil
}

func (t *Tree) setStandard(
	n *node,
	req Request,
	preferRank bool,
	except NodeID,
) (Freq, error) {
	parent := t.nodes[n.parent]
	if _, err := t.set(parent, req, preferRank, n.id); err != nil {
		return 0, err
	}

	parentRate, err := t.resolveRate(parent)
	if err != nil {
		return 0, err
	}

	parentRank, err := t.accumulatedRank(parent)
	if err != nil {
		return 0, err
	}

	current, err := t.resolveRate(n)
	if err != nil {
		return 0, err
	}

	rate, err := t.roundStandard(n, req, parentRate)
	if err != nil {
		return 0, err
	}

	rank := parentRank.Add(n.cost(rate))
	if err := t.notifySubtree(n, current, rate, rank, PhaseQuery, except); err != nil {
		return 0, err
	}

	if rate == current {
		return current, nil
	}

	if err := t.notifySubtree(n, current, rate, rank, PhasePre, NoNode); err != nil {
		return 0, err
	}

	var achieved Freq
	if err := t.write(n, "set rate", rate, func() error {
		var err error
		achieved, err = n.std.SetRate(rate, parentRate)
		return notConfigurable(err)
	}); err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, achieved, rank, PhasePost, NoNode); err != nil {
		return 0, err
	}

	return achieved, nil
}

// accumulatedRank sums the cost of every node from the root to n at their
// current rates, following the active input of each mux.
func (t *Tree) accumulatedRank(n *node) (Rank, error) {
	var total Rank

	for n != nil {
		rate, err := t.resolveRate(n)
		if err != nil {
			return 0, err
		}

		total = total.Add(n.cost(rate))

		switch n.kind {
		case KindStandard, KindLeaf:
			n = t.nodes[n.parent]
		case KindMux:
			idx, err := t.activeParent(n)
			if err != nil {
				return 0, err
			}

			if idx == Disconnected {
				return total, nil
			}

			n = t.nodes[n.parents[idx]]
		default:
			n = nil
		}
	}

	return total, nil
}

func notConfigurable(err error) error {
	if errors.Is(err, ErrUnsupported) {
		return fmt.Errorf("%w: %w", ErrNotConfigurable, err)
	}

	return err
}
