package clock

// Disconnected is the input index a mux reports when no parent is selected.
const Disconnected = -1

// A Configurer applies an opaque, driver-defined configuration directly to
// hardware.
type Configurer interface {
	Configure(cfg any) error
}

// RootDriver controls a clock source with no parent, such as a crystal or a
// PLL.
type RootDriver interface {
	Configurer

	// Rate returns the current output rate.
	Rate() (Freq, error)

	// RoundRate returns the best rate not above target that the source can
	// produce. Sources that cannot change rate return ErrUnsupported.
	RoundRate(target Freq) (Freq, error)

	// SetRate programs the source and returns the rate actually achieved.
	SetRate(target Freq) (Freq, error)

	// RateAfter returns the rate the source would produce once cfg is
	// applied, without touching hardware.
	RateAfter(cfg any) (Freq, error)
}

// StandardDriver controls a node whose rate is a function of its single
// parent's rate, such as a divider.
type StandardDriver interface {
	Configurer

	RecalcRate(parentRate Freq) (Freq, error)
	RoundRate(target, parentRate Freq) (Freq, error)
	SetRate(target, parentRate Freq) (Freq, error)
	RateAfter(cfg any, parentRate Freq) (Freq, error)
}

// MuxDriver controls a multiplexer that selects one of several parents.
type MuxDriver interface {
	Configurer

	// ActiveParent returns the selected input index, or Disconnected.
	ActiveParent() (int, error)

	// ValidateParent checks that input index may run at parentRate. It is an
	// electrical check, independent of any consumer's frequency window.
	ValidateParent(parentRate Freq, index int) error

	SelectParent(index int) error

	// ParentAfter returns the input index cfg selects.
	ParentAfter(cfg any) (int, error)
}

// A Gate can switch a clock on and off. Drivers that implement it take part
// in reference-counted gating.
type Gate interface {
	SetPower(on bool) error
}
