package board

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/clocktree/clock"
)

// Freq is a frequency in a board file. It accepts plain integers in Hz and
// strings with an SI prefix such as "48MHz" or "32.768 kHz".
type Freq clock.Freq

// UnmarshalYAML decodes a scalar frequency.
func (f *Freq) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	v, err := ParseFreq(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*f = Freq(v)

	return nil
}

// ParseFreq parses a frequency given in Hz, optionally with an SI prefix.
func ParseFreq(s string) (clock.Freq, error) {
	s = strings.TrimSpace(s)

	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return clock.Freq(v), nil
	}

	v, unit, err := humanize.ParseSI(s)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}

	if unit != "" && !strings.EqualFold(unit, "Hz") {
		return 0, fmt.Errorf("invalid frequency unit %q in %q", unit, s)
	}

	if v < 0 || v > math.MaxUint64 {
		return 0, fmt.Errorf("frequency %q out of range", s)
	}

	return clock.Freq(math.Round(v)), nil
}
