package clock

import (
	"math"
	"math/bits"

	"github.com/dustin/go-humanize"
)

// Freq defines the type of frequency, in Hz.
type Freq uint64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// MaxFreq is the highest representable frequency. It serves as the open upper
// bound of an unconstrained request.
const MaxFreq Freq = math.MaxUint64

func (f Freq) String() string {
	return humanize.SIWithDigits(float64(f), 3, "Hz")
}

// Distance returns the absolute difference between two frequencies.
func (f Freq) Distance(g Freq) Freq {
	if f > g {
		return f - g
	}

	return g - f
}

// Rank is a unitless cost. Arithmetic on ranks saturates at MaxRank.
type Rank uint64

// MaxRank is the loosest possible rank ceiling.
const MaxRank Rank = math.MaxUint64

// Add returns r + o, saturating at MaxRank.
func (r Rank) Add(o Rank) Rank {
	sum, carry := bits.Add64(uint64(r), uint64(o), 0)
	if carry != 0 {
		return MaxRank
	}

	return Rank(sum)
}

// cost returns the rank a node contributes when it runs at rate:
// rank + rankFactor*rate.
func cost(rank, factor Rank, rate Freq) Rank {
	hi, lo := bits.Mul64(uint64(factor), uint64(rate))
	if hi != 0 {
		return MaxRank
	}

	return rank.Add(Rank(lo))
}
