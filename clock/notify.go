package clock

import "fmt"

// Phase is a stage of the rate change protocol.
type Phase int

// A change is first queried over the whole affected subtree, then announced
// before and after the single hardware write it guards.
const (
	PhaseQuery Phase = iota
	PhasePre
	PhasePost
)

func (p Phase) String() string {
	switch p {
	case PhaseQuery:
		return "query"
	case PhasePre:
		return "pre"
	case PhasePost:
		return "post"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Event is delivered to consumer callbacks around a rate change.
type Event struct {
	OldRate Freq
	NewRate Freq
	Phase   Phase
}

// Callback receives rate change events for an output. Returning an error from
// a PhasePre event vetoes the change. Events are only delivered when the rate
// of the output changes: a mux switching to an input that runs at the same
// rate, which can still glitch the output, is not reported.
type Callback func(Event) error

// notifySubtree walks the children of n, which is moving from oldRate to
// newRate at the accumulated rank. The child except and its subtree are not
// visited; negotiation uses it to skip the path it is coming up through,
// which validates itself once its own rate is known.
func (t *Tree) notifySubtree(
	n *node,
	oldRate, newRate Freq,
	rank Rank,
	phase Phase,
	except NodeID,
) error {
	if phase == PhasePost {
		t.storeRate(n, oldRate, newRate)
	}

	for _, cid := range n.children {
		if cid == except {
			continue
		}

		err := t.notifyChild(n, t.nodes[cid], oldRate, newRate, rank, phase)
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *Tree) notifyChild(
	parent, c *node,
	oldRate, newRate Freq,
	rank Rank,
	phase Phase,
) error {
	switch c.kind {
	case KindLeaf:
		return t.notifyLeaf(c, oldRate, newRate, rank, phase)

	case KindStandard:
		childOld, err := c.std.RecalcRate(oldRate)
		if err != nil {
			return driverError(c, "recalc rate", err)
		}

		childNew, err := c.std.RecalcRate(newRate)
		if err != nil {
			return driverError(c, "recalc rate", err)
		}

		return t.notifySubtree(c, childOld, childNew,
			rank.Add(c.cost(childNew)), phase, NoNode)

	case KindMux:
		idx, err := t.activeParent(c)
		if err != nil {
			return err
		}

		if idx == Disconnected || c.parents[idx] != parent.id {
			return nil
		}

		if phase == PhaseQuery {
			if err := c.mux.ValidateParent(newRate, idx); err != nil {
				return rejection(c,
					fmt.Sprintf("input %d at %s", idx, newRate), err)
			}
		}

		return t.notifySubtree(c, oldRate, newRate,
			rank.Add(c.cost(newRate)), phase, NoNode)

	default:
		return fmt.Errorf("%w: root %q listed as a child", ErrInvalidArgument, c.Name)
	}
}

func (t *Tree) notifyLeaf(
	leaf *node,
	oldRate, newRate Freq,
	rank Rank,
	phase Phase,
) error {
	if phase == PhaseQuery {
		if leaf.stateRank != nil {
			rank = *leaf.stateRank
		}

		c := leaf.effectiveConstraint()
		if !c.Admits(newRate, rank) {
			return fmt.Errorf("%w: %s at %s (rank %d) violates %s",
				ErrRequestUnsatisfiable, leaf.Name, newRate, rank, c)
		}

		return nil
	}

	if phase == PhasePost {
		t.storeRate(leaf, oldRate, newRate)
	}

	if oldRate == newRate {
		return nil
	}

	evt := Event{OldRate: oldRate, NewRate: newRate, Phase: phase}
	for _, o := range leaf.consumers {
		if o.callback == nil {
			continue
		}

		if err := o.callback(evt); err != nil {
			return rejection(leaf, "consumer "+o.id+" refused "+phase.String(), err)
		}
	}

	return nil
}

func (t *Tree) storeRate(n *node, oldRate, newRate Freq) {
	if !t.runtime {
		return
	}

	n.rate = newRate

	if oldRate != newRate {
		t.log.Debug("rate changed",
			"clock", n.Name, "old", oldRate, "new", newRate)
		t.invoke(HookPosRateChange, RateChange{
			Node:    n.Name,
			OldRate: oldRate,
			NewRate: newRate,
		})
	}
}
