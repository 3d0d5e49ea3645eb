package clock

import (
	"errors"
	"fmt"
)

// Enable turns on every clock between the output and its root. Each node
// keeps a usage count and is only gated on when the count leaves zero. The
// walk stops at a disconnected mux.
func (o *Output) Enable() error {
	t := o.tree

	t.mu.Lock()
	defer t.mu.Unlock()

	if o.released {
		return fmt.Errorf("%w: consumer %s released", ErrInvalidArgument, o.id)
	}

	path, err := t.powerPath(t.nodes[o.leaf])
	if err != nil {
		return err
	}

	return t.acquire(path, 1)
}

// Disable drops one reference on every clock between the output and its
// root, gating off the ones no longer in use.
func (o *Output) Disable() error {
	t := o.tree

	t.mu.Lock()
	defer t.mu.Unlock()

	if o.released {
		return fmt.Errorf("%w: consumer %s released", ErrInvalidArgument, o.id)
	}

	leaf := t.nodes[o.leaf]

	path, err := t.powerPath(leaf)
	if err != nil {
		return err
	}

	if len(path) > 0 && path[0].usage == 0 {
		return fmt.Errorf("%w: %s is not enabled", ErrInvalidArgument, leaf.Name)
	}

	return t.drop(path, 1)
}

// acquire takes refs references on each node of path, parents first. Nodes
// leaving zero are gated on. On failure the references already taken are
// dropped again.
func (t *Tree) acquire(path []*node, refs int) error {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		n.usage += refs

		if n.usage == refs {
			if err := t.setPower(n, true); err != nil {
				n.usage -= refs
				return errors.Join(err, t.drop(path[i+1:], refs))
			}
		}
	}

	return nil
}

// drop releases refs references on each node of path, children first.
func (t *Tree) drop(path []*node, refs int) error {
	for _, n := range path {
		taken := min(refs, n.usage)
		if taken == 0 {
			continue
		}

		n.usage -= taken

		if n.usage == 0 {
			if err := t.setPower(n, false); err != nil {
				n.usage += taken
				return err
			}
		}
	}

	return nil
}

// switchInput runs fn, which moves mux to input next, and carries the
// references the mux holds over to the new input. The new input is powered
// before the switch and the old one released after it.
func (t *Tree) switchInput(mux *node, next int, fn func() error) error {
	if mux.usage == 0 {
		return fn()
	}

	prev, err := t.activeParent(mux)
	if err != nil {
		return err
	}

	if prev == next {
		return fn()
	}

	if next != Disconnected && (next < 0 || next >= len(mux.parents)) {
		return fmt.Errorf("%w: %s has no input %d", ErrInvalidArgument, mux.Name, next)
	}

	oldPath, err := t.pathFrom(t.inputID(mux, prev))
	if err != nil {
		return err
	}

	newPath, err := t.pathFrom(t.inputID(mux, next))
	if err != nil {
		return err
	}

	if err := t.acquire(newPath, mux.usage); err != nil {
		return err
	}

	if err := fn(); err != nil {
		return errors.Join(err, t.drop(newPath, mux.usage))
	}

	return t.drop(oldPath, mux.usage)
}

func (t *Tree) inputID(mux *node, idx int) NodeID {
	if idx == Disconnected {
		return NoNode
	}

	return mux.parents[idx]
}

// powerPath lists the nodes feeding a leaf, nearest first.
func (t *Tree) powerPath(leaf *node) ([]*node, error) {
	return t.pathFrom(leaf.parent)
}

// pathFrom lists id and the nodes feeding it, nearest first.
func (t *Tree) pathFrom(id NodeID) ([]*node, error) {
	var path []*node

	for id != NoNode {
		n := t.nodes[id]
		path = append(path, n)

		switch n.kind {
		case KindStandard:
			id = n.parent
		case KindMux:
			idx, err := t.activeParent(n)
			if err != nil {
				return nil, err
			}

			if idx == Disconnected {
				id = NoNode
			} else {
				id = n.parents[idx]
			}
		default:
			id = NoNode
		}
	}

	return path, nil
}

func (t *Tree) setPower(n *node, on bool) error {
	t.invoke(HookPosPower, PowerChange{Node: n.Name, On: on, Usage: n.usage})

	if n.gate == nil {
		return nil
	}

	t.log.Debug("gate", "clock", n.Name, "on", on)

	if err := n.gate.SetPower(on); err != nil {
		return driverError(n, "set power", err)
	}

	return nil
}

// DisableUnused gates off every clock whose usage count is zero. It visits
// each node reachable from a root once and keeps going past failures, which
// are returned together.
func (t *Tree) DisableUnused() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	visited := make([]bool, len(t.nodes))

	var (
		errs  []error
		visit func(id NodeID)
	)

	visit = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true

		n := t.nodes[id]
		if n.kind != KindLeaf && n.usage == 0 && n.gate != nil {
			if err := t.setPower(n, false); err != nil {
				errs = append(errs, err)
			}
		}

		for _, cid := range n.children {
			visit(cid)
		}
	}

	for _, id := range t.roots {
		visit(id)
	}

	return errors.Join(errs...)
}
