package clock

// Rate resolves the current rate of a node. A disconnected mux, and anything
// it feeds, runs at 0 Hz.
func (t *Tree) Rate(id NodeID) (Freq, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.node(id)
	if err != nil {
		return 0, err
	}

	return t.resolveRate(n)
}

func (t *Tree) resolveRate(n *node) (Freq, error) {
	if t.runtime && n.rate != 0 {
		return n.rate, nil
	}

	rate, err := t.computeRate(n)
	if err != nil {
		return 0, err
	}

	if t.runtime {
		n.rate = rate
	}

	return rate, nil
}

func (t *Tree) computeRate(n *node) (Freq, error) {
	switch n.kind {
	case KindRoot:
		rate, err := n.root.Rate()
		if err != nil {
			return 0, driverError(n, "get rate", err)
		}

		return rate, nil

	case KindStandard:
		parentRate, err := t.resolveRate(t.nodes[n.parent])
		if err != nil {
			return 0, err
		}

		rate, err := n.std.RecalcRate(parentRate)
		if err != nil {
			return 0, driverError(n, "recalc rate", err)
		}

		return rate, nil

	case KindMux:
		idx, err := t.activeParent(n)
		if err != nil {
			return 0, err
		}

		if idx == Disconnected {
			return 0, nil
		}

		return t.resolveRate(t.nodes[n.parents[idx]])

	default:
		return t.resolveRate(t.nodes[n.parent])
	}
}
