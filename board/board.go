// Package board loads clock trees from YAML board files. Every clock of a
// board is backed by a simulated driver from package clocksim.
package board

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/clocksim"
)

// Clock types of a board file.
const (
	TypeFixed   = "fixed"
	TypePLL     = "pll"
	TypeDivider = "divider"
	TypeMux     = "mux"
	TypeOutput  = "output"
)

// File is the document structure of a board file.
type File struct {
	Name   string     `yaml:"name" validate:"required"`
	Clocks []ClockDef `yaml:"clocks" validate:"required,min=1,dive"`
}

// ClockDef describes one clock. Which fields apply depends on Type.
type ClockDef struct {
	Name       string `yaml:"name" validate:"required"`
	Type       string `yaml:"type" validate:"required,oneof=fixed pll divider mux output"`
	Rank       uint64 `yaml:"rank"`
	RankFactor uint64 `yaml:"rank_factor"`

	// fixed, pll
	Rate Freq `yaml:"rate" validate:"required_if=Type fixed,required_if=Type pll"`

	// pll
	Min  Freq `yaml:"min"`
	Max  Freq `yaml:"max"`
	Step Freq `yaml:"step"`

	// divider, output
	Parent string `yaml:"parent" validate:"required_if=Type divider,required_if=Type output"`

	// divider
	Div    uint64 `yaml:"div"`
	MaxDiv uint64 `yaml:"max_div" validate:"omitempty,gtefield=Div"`

	// mux
	Parents []string        `yaml:"parents" validate:"required_if=Type mux,unique"`
	Select  string          `yaml:"select"`
	Limits  map[string]Freq `yaml:"limits"`

	// output
	States []StateDef `yaml:"states" validate:"dive"`
}

// StateDef is a static output state.
type StateDef struct {
	Name     string       `yaml:"name" validate:"required"`
	Freq     Freq         `yaml:"freq" validate:"required"`
	Rank     uint64       `yaml:"rank"`
	Settings []SettingDef `yaml:"settings" validate:"dive"`
}

// SettingDef configures one clock. The value is a frequency for a pll, a
// divider for a divider, and an input name or index for a mux.
type SettingDef struct {
	Clock string `yaml:"clock" validate:"required"`
	Value string `yaml:"value" validate:"required"`
}

// Board is a loaded board: its clock tree and the bus its simulated
// hardware writes to.
type Board struct {
	Name string
	Tree *clock.Tree
	Bus  *clocksim.Bus
}

var validate = validator.New()

// Load reads a board file and builds its tree with builder.
func Load(path string, builder clock.Builder) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board file: %w", err)
	}

	return Parse(data, builder)
}

// Parse decodes a board file and builds its tree with builder. Unknown
// fields are rejected.
func Parse(data []byte, builder clock.Builder) (*Board, error) {
	var f File

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse board: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid board: %w", err)
	}

	bus := clocksim.NewBus()

	topo, err := f.topology(bus)
	if err != nil {
		return nil, fmt.Errorf("invalid board %s: %w", f.Name, err)
	}

	tree, err := builder.Build(topo)
	if err != nil {
		return nil, fmt.Errorf("invalid board %s: %w", f.Name, err)
	}

	return &Board{Name: f.Name, Tree: tree, Bus: bus}, nil
}

func (f *File) topology(bus *clocksim.Bus) (*clock.Topology, error) {
	byName := make(map[string]*ClockDef, len(f.Clocks))
	for i := range f.Clocks {
		byName[f.Clocks[i].Name] = &f.Clocks[i]
	}

	topo := clock.NewTopology()

	var errs []error
	for _, c := range f.Clocks {
		spec := clock.NodeSpec{
			Name:       c.Name,
			Rank:       clock.Rank(c.Rank),
			RankFactor: clock.Rank(c.RankFactor),
		}

		switch c.Type {
		case TypeFixed:
			topo.AddRoot(spec, clocksim.NewFixedRoot(c.Name, bus, clock.Freq(c.Rate)))
		case TypePLL:
			topo.AddRoot(spec, c.pll(bus))
		case TypeDivider:
			topo.AddStandard(spec, c.Parent,
				clocksim.NewDivider(c.Name, bus, max(c.Div, 1), c.MaxDiv))
		case TypeMux:
			drv, err := c.mux(bus)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			topo.AddMux(spec, c.Parents, drv)
		case TypeOutput:
			states, err := c.states(byName)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			topo.AddLeaf(spec, c.Parent, states...)
		}
	}

	return topo, errors.Join(errs...)
}

func (c *ClockDef) pll(bus *clocksim.Bus) *clocksim.PLL {
	maxRate := c.Max
	if maxRate == 0 {
		maxRate = c.Rate
	}

	return clocksim.NewPLL(c.Name, bus,
		clock.Freq(c.Rate), clock.Freq(c.Min), clock.Freq(maxRate), clock.Freq(c.Step))
}

func (c *ClockDef) mux(bus *clocksim.Bus) (*clocksim.Mux, error) {
	selected := clock.Disconnected
	if c.Select != "" {
		idx, err := c.input(c.Select)
		if err != nil {
			return nil, err
		}
		selected = idx
	}

	m := clocksim.NewMux(c.Name, bus, len(c.Parents), selected)

	for input, limit := range c.Limits {
		idx := slices.Index(c.Parents, input)
		if idx < 0 {
			return nil, fmt.Errorf("mux %q limits unknown input %q", c.Name, input)
		}
		m.WithInputLimit(idx, clock.Freq(limit))
	}

	return m, nil
}

// input resolves a mux input given by parent name or index.
func (c *ClockDef) input(v string) (int, error) {
	if idx := slices.Index(c.Parents, v); idx >= 0 {
		return idx, nil
	}

	idx, err := strconv.Atoi(v)
	if err != nil || idx < 0 || idx >= len(c.Parents) {
		return 0, fmt.Errorf("mux %q has no input %q", c.Name, v)
	}

	return idx, nil
}

func (c *ClockDef) states(byName map[string]*ClockDef) ([]clock.OutputState, error) {
	states := make([]clock.OutputState, 0, len(c.States))

	for _, s := range c.States {
		st := clock.OutputState{
			Name: s.Name,
			Freq: clock.Freq(s.Freq),
			Rank: clock.Rank(s.Rank),
		}

		for _, set := range s.Settings {
			target, ok := byName[set.Clock]
			if !ok {
				return nil, fmt.Errorf("state %q of %q configures unknown clock %q",
					s.Name, c.Name, set.Clock)
			}

			cfg, err := target.config(set.Value)
			if err != nil {
				return nil, fmt.Errorf("state %q of %q: %w", s.Name, c.Name, err)
			}

			st.Settings = append(st.Settings, clock.Setting{Node: set.Clock, Config: cfg})
		}

		states = append(states, st)
	}

	return states, nil
}

// config converts a setting value to the configuration the clock's driver
// takes.
func (c *ClockDef) config(v string) (any, error) {
	switch c.Type {
	case TypePLL, TypeFixed:
		return ParseFreq(v)
	case TypeDivider:
		div, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid divider %q for %q", v, c.Name)
		}
		return div, nil
	case TypeMux:
		return c.input(v)
	default:
		return nil, fmt.Errorf("%s %q cannot be configured", c.Type, c.Name)
	}
}
