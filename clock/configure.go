package clock

import "fmt"

// configureNode applies cfg to n as a guarded transaction. The resulting rate
// is queried over the subtree first, then announced before and after the
// hardware write.
func (t *Tree) configureNode(n *node, cfg any) (Freq, error) {
	current, err := t.resolveRate(n)
	if err != nil {
		return 0, err
	}

	next, err := t.rateAfter(n, cfg)
	if err != nil {
		return 0, err
	}

	rank, err := t.rankAfter(n, cfg, next)
	if err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, next, rank, PhaseQuery, NoNode); err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, next, rank, PhasePre, NoNode); err != nil {
		return 0, err
	}

	if err := t.configure(n, cfg); err != nil {
		return 0, err
	}

	if err := t.notifySubtree(n, current, next, rank, PhasePost, NoNode); err != nil {
		return 0, err
	}

	return next, nil
}

// rateAfter computes the rate n would run at once cfg is applied.
func (t *Tree) rateAfter(n *node, cfg any) (Freq, error) {
	switch n.kind {
	case KindRoot:
		rate, err := n.root.RateAfter(cfg)
		if err != nil {
			return 0, driverError(n, "recalc after config", err)
		}

		return rate, nil

	case KindStandard:
		parentRate, err := t.resolveRate(t.nodes[n.parent])
		if err != nil {
			return 0, err
		}

		rate, err := n.std.RateAfter(cfg, parentRate)
		if err != nil {
			return 0, driverError(n, "recalc after config", err)
		}

		return rate, nil

	case KindMux:
		idx, err := n.mux.ParentAfter(cfg)
		if err != nil {
			return 0, driverError(n, "recalc after config", err)
		}

		if idx == Disconnected {
			return 0, nil
		}

		if idx < 0 || idx >= len(n.parents) {
			return 0, fmt.Errorf("%w: %s has no input %d",
				ErrInvalidArgument, n.Name, idx)
		}

		parentRate, err := t.resolveRate(t.nodes[n.parents[idx]])
		if err != nil {
			return 0, err
		}

		if err := n.mux.ValidateParent(parentRate, idx); err != nil {
			return 0, rejection(n,
				fmt.Sprintf("input %d at %s", idx, parentRate), err)
		}

		return parentRate, nil

	default:
		return 0, fmt.Errorf("%w: %s", ErrNotConfigurable, n.Name)
	}
}

// rankAfter accumulates the rank from the root to n once cfg moves n to
// rate.
func (t *Tree) rankAfter(n *node, cfg any, rate Freq) (Rank, error) {
	own := n.cost(rate)

	switch n.kind {
	case KindStandard:
		upstream, err := t.accumulatedRank(t.nodes[n.parent])
		if err != nil {
			return 0, err
		}

		return upstream.Add(own), nil

	case KindMux:
		idx, err := n.mux.ParentAfter(cfg)
		if err != nil {
			return 0, driverError(n, "recalc after config", err)
		}

		if idx == Disconnected {
			return own, nil
		}

		upstream, err := t.accumulatedRank(t.nodes[n.parents[idx]])
		if err != nil {
			return 0, err
		}

		return upstream.Add(own), nil

	default:
		return own, nil
	}
}

// configureDirect applies cfg without caching or notification.
func (t *Tree) configureDirect(n *node, cfg any) error {
	if n.configurer() == nil {
		return fmt.Errorf("%w: %s", ErrNotConfigurable, n.Name)
	}

	return t.configure(n, cfg)
}

// configure writes cfg to n. A mux moving to another input takes its usage
// references along.
func (t *Tree) configure(n *node, cfg any) error {
	apply := func() error {
		return t.write(n, "configure", cfg, func() error {
			return n.configurer().Configure(cfg)
		})
	}

	if n.kind != KindMux || n.usage == 0 {
		return apply()
	}

	idx, err := n.mux.ParentAfter(cfg)
	if err != nil {
		return driverError(n, "recalc after config", err)
	}

	return t.switchInput(n, idx, apply)
}

func (t *Tree) write(n *node, op string, value any, fn func() error) error {
	t.log.Debug("hardware write", "clock", n.Name, "op", op, "value", value)
	t.invoke(HookPosWrite, HardwareWrite{Node: n.Name, Op: op, Value: value})

	if err := fn(); err != nil {
		return driverError(n, op, err)
	}

	return nil
}

// applyOutputState moves a leaf to one of its static states. Settings are
// applied in order and the first failure stops the application. Settings
// already applied stay applied, so a failed multi-setting state leaves the
// tree in an intermediate configuration.
func (t *Tree) applyOutputState(leaf *node, st *outputState) error {
	if len(st.settings) == 0 {
		return t.negotiateState(leaf, st)
	}

	// The leaf is held to the rank the state declares, whatever the walk
	// accumulates on the way down.
	leaf.stateRank = &st.Rank
	defer func() { leaf.stateRank = nil }()

	for i, s := range st.settings {
		target := t.nodes[s.node]

		var err error
		if t.runtime {
			_, err = t.configureNode(target, s.cfg)
		} else {
			err = t.configureDirect(target, s.cfg)
		}

		if err != nil {
			return fmt.Errorf("state %q of %s, setting %d (%s): %w",
				st.Name, leaf.Name, i, target.Name, err)
		}
	}

	t.log.Debug("state applied", "output", leaf.Name, "state", st.Name)

	return nil
}

func (t *Tree) negotiateState(leaf *node, st *outputState) error {
	if !t.setRate {
		return fmt.Errorf("%w: state %q of %s has no settings and "+
			"negotiation is disabled", ErrUnsupported, st.Name, leaf.Name)
	}

	req := Request{
		MinFreq: st.Freq,
		MaxFreq: st.Freq,
		MaxRank: leaf.effectiveConstraint().MaxRank,
	}

	return t.negotiate(t.nodes[leaf.parent], req, false)
}
