package clock

import "fmt"

// Request describes an acceptable frequency window and a ceiling on the
// accumulated rank. A zero MaxRank means no ceiling.
type Request struct {
	MinFreq Freq
	MaxFreq Freq
	MaxRank Rank
}

func (r Request) String() string {
	return fmt.Sprintf("[%s, %s] rank<=%d", r.MinFreq, r.MaxFreq, r.MaxRank)
}

func (r Request) normalized() Request {
	if r.MaxRank == 0 {
		r.MaxRank = MaxRank
	}

	return r
}

func (r Request) valid() bool {
	return r.MinFreq <= r.MaxFreq
}

// admits reports whether a rate reached at rank satisfies the request.
func (r Request) admits(rate Freq, rank Rank) bool {
	return rate >= r.MinFreq && rate <= r.MaxFreq && rank <= r.MaxRank
}

// Constraint is the intersection of all active requests on an output.
type Constraint struct {
	MinFreq Freq
	MaxFreq Freq
	MaxRank Rank
}

// Loosest returns the constraint that admits every rate and rank.
func Loosest() Constraint {
	return Constraint{MinFreq: 0, MaxFreq: MaxFreq, MaxRank: MaxRank}
}

func (c Constraint) String() string {
	return Request(c).String()
}

// Overlaps reports whether the request can be folded into c without
// producing an empty window.
func (c Constraint) Overlaps(r Request) bool {
	return c.MinFreq <= r.MaxFreq && c.MaxFreq >= r.MinFreq
}

// Tighten folds a request into the constraint.
func (c Constraint) Tighten(r Request) Constraint {
	r = r.normalized()

	return Constraint{
		MinFreq: max(c.MinFreq, r.MinFreq),
		MaxFreq: min(c.MaxFreq, r.MaxFreq),
		MaxRank: min(c.MaxRank, r.MaxRank),
	}
}

// Admits reports whether a rate reached at rank satisfies c.
func (c Constraint) Admits(rate Freq, rank Rank) bool {
	return Request(c).admits(rate, rank)
}
