package clocksim

import (
	"fmt"

	"github.com/sarchlab/clocktree/clock"
)

// FixedRoot is a crystal or oscillator running at a fixed rate.
type FixedRoot struct {
	Gate
	rate clock.Freq
}

// NewFixedRoot creates a fixed-rate source.
func NewFixedRoot(name string, bus *Bus, rate clock.Freq) *FixedRoot {
	return &FixedRoot{Gate: Gate{name: name, bus: bus}, rate: rate}
}

// Rate returns the oscillator rate.
func (r *FixedRoot) Rate() (clock.Freq, error) {
	return r.rate, nil
}

// RoundRate is not supported by fixed sources.
func (r *FixedRoot) RoundRate(clock.Freq) (clock.Freq, error) {
	return 0, clock.ErrUnsupported
}

// SetRate is not supported by fixed sources.
func (r *FixedRoot) SetRate(clock.Freq) (clock.Freq, error) {
	return 0, clock.ErrUnsupported
}

// RateAfter returns the fixed rate; a fixed source has nothing to configure.
func (r *FixedRoot) RateAfter(any) (clock.Freq, error) {
	return r.rate, nil
}

// Configure logs the access and leaves the rate unchanged.
func (r *FixedRoot) Configure(cfg any) error {
	return r.bus.access(r.name, "configure", cfg)
}

// PLL is an adjustable source producing min + k*step, up to max.
type PLL struct {
	Gate
	rate     clock.Freq
	min, max clock.Freq
	step     clock.Freq
}

// NewPLL creates an adjustable source currently running at rate.
func NewPLL(
	name string,
	bus *Bus,
	rate, minRate, maxRate, step clock.Freq,
) *PLL {
	if step == 0 {
		step = 1
	}

	return &PLL{
		Gate: Gate{name: name, bus: bus},
		rate: rate,
		min:  minRate,
		max:  maxRate,
		step: step,
	}
}

// Rate returns the programmed rate.
func (p *PLL) Rate() (clock.Freq, error) {
	return p.rate, nil
}

// RoundRate returns the highest reachable rate not above target, or the
// minimum rate when target is below it.
func (p *PLL) RoundRate(target clock.Freq) (clock.Freq, error) {
	if target <= p.min {
		return p.min, nil
	}

	target = min(target, p.max)

	return p.min + (target-p.min)/p.step*p.step, nil
}

// SetRate programs the closest reachable rate not above target.
func (p *PLL) SetRate(target clock.Freq) (clock.Freq, error) {
	rate, _ := p.RoundRate(target)
	if err := p.bus.access(p.name, "set_rate", rate); err != nil {
		return 0, err
	}

	p.rate = rate

	return rate, nil
}

// RateAfter returns the rate a configuration would program.
func (p *PLL) RateAfter(cfg any) (clock.Freq, error) {
	rate, err := toFreq(cfg)
	if err != nil {
		return 0, err
	}

	if rate < p.min || rate > p.max {
		return 0, fmt.Errorf("%w: %s outside [%s, %s]",
			clock.ErrInvalidArgument, rate, p.min, p.max)
	}

	return rate, nil
}

// Configure programs the rate given as configuration.
func (p *PLL) Configure(cfg any) error {
	rate, err := p.RateAfter(cfg)
	if err != nil {
		return err
	}

	if err := p.bus.access(p.name, "configure", rate); err != nil {
		return err
	}

	p.rate = rate

	return nil
}

// Divider divides its parent rate by an integer in [1, maxDiv].
type Divider struct {
	Gate
	div    uint64
	maxDiv uint64
}

// NewDivider creates a divider currently dividing by div.
func NewDivider(name string, bus *Bus, div, maxDiv uint64) *Divider {
	return &Divider{
		Gate:   Gate{name: name, bus: bus},
		div:    max(div, 1),
		maxDiv: max(maxDiv, div, 1),
	}
}

// Div returns the programmed divider.
func (d *Divider) Div() uint64 {
	return d.div
}

// RecalcRate divides parentRate by the programmed divider.
func (d *Divider) RecalcRate(parentRate clock.Freq) (clock.Freq, error) {
	return parentRate / clock.Freq(d.div), nil
}

// bestDiv returns the smallest divider bringing parentRate to or below
// target, clamped to the divider's range.
func (d *Divider) bestDiv(target, parentRate clock.Freq) uint64 {
	if target == 0 {
		return d.maxDiv
	}

	div := uint64((parentRate + target - 1) / target)

	return min(max(div, 1), d.maxDiv)
}

// RoundRate returns the highest rate not above target the divider can derive
// from parentRate.
func (d *Divider) RoundRate(target, parentRate clock.Freq) (clock.Freq, error) {
	return parentRate / clock.Freq(d.bestDiv(target, parentRate)), nil
}

// SetRate programs the divider for the highest rate not above target.
func (d *Divider) SetRate(target, parentRate clock.Freq) (clock.Freq, error) {
	div := d.bestDiv(target, parentRate)
	if err := d.bus.access(d.name, "set_div", div); err != nil {
		return 0, err
	}

	d.div = div

	return parentRate / clock.Freq(div), nil
}

// RateAfter returns the rate a divider configuration would produce.
func (d *Divider) RateAfter(cfg any, parentRate clock.Freq) (clock.Freq, error) {
	div, err := d.divFrom(cfg)
	if err != nil {
		return 0, err
	}

	return parentRate / clock.Freq(div), nil
}

// Configure programs the divider given as configuration.
func (d *Divider) Configure(cfg any) error {
	div, err := d.divFrom(cfg)
	if err != nil {
		return err
	}

	if err := d.bus.access(d.name, "configure", div); err != nil {
		return err
	}

	d.div = div

	return nil
}

func (d *Divider) divFrom(cfg any) (uint64, error) {
	v, err := toInt(cfg)
	if err != nil {
		return 0, err
	}

	if v < 1 || uint64(v) > d.maxDiv {
		return 0, fmt.Errorf("%w: divider %d outside [1, %d]",
			clock.ErrInvalidArgument, v, d.maxDiv)
	}

	return uint64(v), nil
}

// Mux selects one of its inputs. Inputs may carry a maximum rate, which
// ValidateParent enforces.
type Mux struct {
	Gate
	selected int
	limits   []clock.Freq
}

// NewMux creates a mux with the given number of inputs. selected may be
// clock.Disconnected.
func NewMux(name string, bus *Bus, inputs, selected int) *Mux {
	return &Mux{
		Gate:     Gate{name: name, bus: bus},
		selected: selected,
		limits:   make([]clock.Freq, inputs),
	}
}

// WithInputLimit sets the highest rate input idx may carry.
func (m *Mux) WithInputLimit(idx int, limit clock.Freq) *Mux {
	m.limits[idx] = limit
	return m
}

// ActiveParent returns the selected input.
func (m *Mux) ActiveParent() (int, error) {
	return m.selected, nil
}

// ValidateParent rejects rates above the input's limit.
func (m *Mux) ValidateParent(parentRate clock.Freq, idx int) error {
	if err := m.checkInput(idx); err != nil {
		return err
	}

	if limit := m.limits[idx]; limit != 0 && parentRate > limit {
		return fmt.Errorf("input %d limited to %s, got %s", idx, limit, parentRate)
	}

	return nil
}

// SelectParent switches to input idx.
func (m *Mux) SelectParent(idx int) error {
	if err := m.checkInput(idx); err != nil {
		return err
	}

	if err := m.bus.access(m.name, "select", idx); err != nil {
		return err
	}

	m.selected = idx

	return nil
}

// ParentAfter returns the input a configuration selects.
func (m *Mux) ParentAfter(cfg any) (int, error) {
	idx, err := toInt(cfg)
	if err != nil {
		return 0, err
	}

	if idx == clock.Disconnected {
		return idx, nil
	}

	return idx, m.checkInput(idx)
}

// Configure selects the input given as configuration.
func (m *Mux) Configure(cfg any) error {
	idx, err := m.ParentAfter(cfg)
	if err != nil {
		return err
	}

	if err := m.bus.access(m.name, "configure", idx); err != nil {
		return err
	}

	m.selected = idx

	return nil
}

func (m *Mux) checkInput(idx int) error {
	if idx < 0 || idx >= len(m.limits) {
		return fmt.Errorf("%w: %s has no input %d",
			clock.ErrInvalidArgument, m.name, idx)
	}

	return nil
}

func toFreq(cfg any) (clock.Freq, error) {
	switch v := cfg.(type) {
	case clock.Freq:
		return v, nil
	case uint64:
		return clock.Freq(v), nil
	case int:
		if v >= 0 {
			return clock.Freq(v), nil
		}
	}

	return 0, fmt.Errorf("%w: %v (%T) is not a frequency",
		clock.ErrInvalidArgument, cfg, cfg)
}

func toInt(cfg any) (int, error) {
	switch v := cfg.(type) {
	case int:
		return v, nil
	case uint64:
		return int(v), nil
	case int64:
		return int(v), nil
	}

	return 0, fmt.Errorf("%w: %v (%T) is not an integer",
		clock.ErrInvalidArgument, cfg, cfg)
}

var (
	_ clock.RootDriver     = (*FixedRoot)(nil)
	_ clock.RootDriver     = (*PLL)(nil)
	_ clock.StandardDriver = (*Divider)(nil)
	_ clock.MuxDriver      = (*Mux)(nil)
	_ clock.Gate           = (*Gate)(nil)
)
