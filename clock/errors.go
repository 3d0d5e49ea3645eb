package clock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned for unknown nodes, handles, or state ids.
	ErrInvalidArgument = errors.New("clock: invalid argument")

	// ErrUnsupported is returned when a capability is not enabled on the tree
	// or an operation is not defined for a node variant. Drivers return it from
	// RoundRate and SetRate when the hardware cannot change its rate.
	ErrUnsupported = errors.New("clock: unsupported")

	// ErrRequestUnsatisfiable is returned when no state or negotiated rate
	// meets the combined constraint, or when a descendant vetoes a change.
	ErrRequestUnsatisfiable = errors.New("clock: request unsatisfiable")

	// ErrNotConfigurable is returned when a node has no write path.
	ErrNotConfigurable = errors.New("clock: not configurable")

	// ErrHardwareFailure wraps I/O errors reported by driver hooks.
	ErrHardwareFailure = errors.New("clock: hardware failure")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrUnsupported,
	ErrRequestUnsatisfiable,
	ErrNotConfigurable,
	ErrHardwareFailure,
}

func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}

	return false
}

// driverError attributes a driver hook failure to a node. Errors that already
// carry one of the package's kinds keep it; anything else is a hardware
// failure.
func driverError(n *node, op string, err error) error {
	if hasKind(err) {
		return fmt.Errorf("%s: %s: %w", n.Name, op, err)
	}

	return fmt.Errorf("%w: %s: %s: %w", ErrHardwareFailure, n.Name, op, err)
}

// rejection reports a compatibility or consumer veto. Unlike driverError, an
// untyped error here means the change is unacceptable, not that I/O failed.
func rejection(n *node, what string, err error) error {
	if hasKind(err) {
		return fmt.Errorf("%s: %s: %w", n.Name, what, err)
	}

	return fmt.Errorf("%w: %s: %s: %w", ErrRequestUnsatisfiable, n.Name, what, err)
}
