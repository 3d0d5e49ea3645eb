package clock_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/clocksim"
)

func buildNegotiating(topo *clock.Topology) *clock.Tree {
	tree, err := clock.MakeBuilder().
		WithRuntime().
		WithSetRate().
		WithLogger(quietLogger()).
		Build(topo)
	Expect(err).NotTo(HaveOccurred())

	return tree
}

var _ = Describe("Mux negotiation", func() {
	var (
		bus    *clocksim.Bus
		tree   *clock.Tree
		mux    clock.NodeID
		output *clock.Output
	)

	BeforeEach(func() {
		bus = clocksim.NewBus()

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "osc_a", Rank: 1},
			clocksim.NewFixedRoot("osc_a", bus, 9900*clock.KHz))
		topo.AddRoot(clock.NodeSpec{Name: "osc_b", Rank: 5},
			clocksim.NewFixedRoot("osc_b", bus, 11*clock.MHz))
		mux = topo.AddMux(clock.NodeSpec{Name: "mux"},
			[]string{"osc_a", "osc_b"},
			clocksim.NewMux("mux", bus, 2, 1))
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "mux")

		tree = buildNegotiating(topo)

		var err error
		output, err = tree.OutputByName("out", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should switch to the input inside the window", func() {
		rate, err := output.RequestRate(clock.Request{
			MinFreq: 9 * clock.MHz,
			MaxFreq: 10 * clock.MHz,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(9900 * clock.KHz))
		Expect(tree.ActiveParent(mux)).To(Equal(0))
		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "mux", Op: "select", Value: 0},
		}))
	})

	It("should fail when no input reaches the window", func() {
		_, err := output.RequestRate(clock.Request{
			MinFreq: 12 * clock.MHz,
			MaxFreq: 13 * clock.MHz,
		})

		Expect(err).To(MatchError(clock.ErrRequestUnsatisfiable))
		Expect(tree.ActiveParent(mux)).To(Equal(1))
		Expect(tree.Constraint(output.Leaf())).To(Equal(clock.Loosest()))
		Expect(bus.Writes()).To(BeEmpty())
	})

	It("should not write when the active input already fits", func() {
		rate, err := output.RequestRate(clock.Request{
			MinFreq: 10 * clock.MHz,
			MaxFreq: 12 * clock.MHz,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(11 * clock.MHz))
		Expect(bus.Writes()).To(BeEmpty())
	})

	It("should fall back to the closest input when rounding", func() {
		rate, _, err := tree.Round(mux, clock.Request{
			MinFreq: 12 * clock.MHz,
			MaxFreq: 13 * clock.MHz,
		}, false)

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(11 * clock.MHz))
	})

	It("should prefer accuracy or rank as asked", func() {
		req := clock.Request{MinFreq: 9 * clock.MHz, MaxFreq: 12 * clock.MHz}

		rate, rank, err := tree.Round(mux, req, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(11 * clock.MHz))
		Expect(rank).To(Equal(clock.Rank(5)))

		rate, rank, err = tree.Round(mux, req, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(9900 * clock.KHz))
		Expect(rank).To(Equal(clock.Rank(1)))
	})

	It("should switch inputs for a ranked request", func() {
		rate, err := output.RequestRanked(clock.Request{
			MinFreq: 9 * clock.MHz,
			MaxFreq: 12 * clock.MHz,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(9900 * clock.KHz))
	})
})

var _ = Describe("Mux electrical limits", func() {
	It("should skip inputs the mux cannot carry", func() {
		bus := clocksim.NewBus()

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "fast"},
			clocksim.NewFixedRoot("fast", bus, 100*clock.MHz))
		topo.AddRoot(clock.NodeSpec{Name: "slow"},
			clocksim.NewFixedRoot("slow", bus, 50*clock.MHz))
		topo.AddMux(clock.NodeSpec{Name: "mux"}, []string{"fast", "slow"},
			clocksim.NewMux("mux", bus, 2, clock.Disconnected).
				WithInputLimit(0, 80*clock.MHz))
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "mux")

		tree := buildNegotiating(topo)
		output, err := tree.OutputByName("out", nil)
		Expect(err).NotTo(HaveOccurred())

		rate, err := output.RequestRate(clock.Request{MaxFreq: 200 * clock.MHz})

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(50 * clock.MHz))
		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "mux", Op: "select", Value: 1},
		}))
	})
})

var _ = Describe("Divider chain", func() {
	var (
		bus    *clocksim.Bus
		s1, s2 *clocksim.Divider
		tree   *clock.Tree
		out    clock.NodeID
		output *clock.Output
	)

	BeforeEach(func() {
		bus = clocksim.NewBus()
		s1 = clocksim.NewDivider("s1", bus, 1, 16)
		s2 = clocksim.NewDivider("s2", bus, 1, 16)

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "xtal"},
			clocksim.NewFixedRoot("xtal", bus, 1000))
		topo.AddStandard(clock.NodeSpec{Name: "s1", Rank: 2, RankFactor: 1}, "xtal", s1)
		topo.AddStandard(clock.NodeSpec{Name: "s2", Rank: 3, RankFactor: 2}, "s1", s2)
		out = topo.AddLeaf(clock.NodeSpec{Name: "out"}, "s2")

		tree = buildNegotiating(topo)

		var err error
		output, err = tree.Output(out, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should accumulate rank along the chain", func() {
		rate, rank, err := tree.Round(out, clock.Request{MinFreq: 100, MaxFreq: 100}, false)

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(clock.Freq(100)))
		Expect(rank).To(Equal(clock.Rank(2 + 1*100 + 3 + 2*100)))
	})

	It("should program the parents first", func() {
		rate, err := output.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 100})

		Expect(err).NotTo(HaveOccurred())
		Expect(rate).To(Equal(clock.Freq(100)))
		Expect(s1.Div()).To(Equal(uint64(10)))
		Expect(s2.Div()).To(Equal(uint64(1)))
		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "s1", Op: "set_div", Value: uint64(10)},
		}))
	})

	It("should not touch anything when the rank ceiling is exceeded", func() {
		_, err := output.RequestRate(clock.Request{
			MinFreq: 100, MaxFreq: 100, MaxRank: 300,
		})

		Expect(err).To(MatchError(clock.ErrRequestUnsatisfiable))
		Expect(bus.Writes()).To(BeEmpty())
		Expect(s1.Div()).To(Equal(uint64(1)))
		Expect(tree.Rate(out)).To(Equal(clock.Freq(1000)))
	})

	It("should report hardware failures", func() {
		nack := errors.New("nack")
		bus.FailNext("s1", nack)

		_, err := output.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 100})

		Expect(err).To(MatchError(clock.ErrHardwareFailure))
		Expect(err).To(MatchError(nack))
		Expect(tree.Constraint(out)).To(Equal(clock.Loosest()))
	})

	It("should negotiate states without settings", func() {
		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "xtal"},
			clocksim.NewFixedRoot("xtal", bus, 1000))
		topo.AddStandard(clock.NodeSpec{Name: "div"}, "xtal",
			clocksim.NewDivider("div", bus, 1, 16))
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "div",
			clock.OutputState{Name: "quarter", Freq: 250})

		tree := buildNegotiating(topo)
		o, err := tree.OutputByName("out", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(o.ApplyNamedState("quarter")).To(Succeed())
		Expect(o.Rate()).To(Equal(clock.Freq(250)))
	})
})

var _ = Describe("Change notification", func() {
	var (
		bus        *clocksim.Bus
		tree       *clock.Tree
		pll        clock.NodeID
		a, b       *clock.Output
		events     []clock.Event
		veto       error
		hookEvents []clock.HookCtx
	)

	BeforeEach(func() {
		bus = clocksim.NewBus()
		events = nil
		veto = nil
		hookEvents = nil

		topo := clock.NewTopology()
		pll = topo.AddRoot(clock.NodeSpec{Name: "pll"},
			clocksim.NewPLL("pll", bus, 1000, 100, 1000, 1))
		topo.AddLeaf(clock.NodeSpec{Name: "a"}, "pll")
		topo.AddLeaf(clock.NodeSpec{Name: "b"}, "pll")

		tree = buildNegotiating(topo)
		tree.AcceptHook(clock.HookFunc(func(ctx clock.HookCtx) {
			hookEvents = append(hookEvents, ctx)
		}))

		var err error
		a, err = tree.OutputByName("a", nil)
		Expect(err).NotTo(HaveOccurred())
		b, err = tree.OutputByName("b", func(e clock.Event) error {
			events = append(events, e)
			if e.Phase == clock.PhasePre {
				return veto
			}
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should notify siblings before and after the write", func() {
		_, err := a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})

		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(Equal([]clock.Event{
			{OldRate: 1000, NewRate: 200, Phase: clock.PhasePre},
			{OldRate: 1000, NewRate: 200, Phase: clock.PhasePost},
		}))
	})

	It("should let a consumer veto a change", func() {
		veto = errors.New("busy")

		_, err := a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})

		Expect(err).To(MatchError(clock.ErrRequestUnsatisfiable))
		Expect(err).To(MatchError(veto))
		Expect(bus.Writes()).To(BeEmpty())
		Expect(tree.CachedRate(pll)).To(Equal(clock.Freq(1000)))
	})

	It("should leave everything untouched when a sibling rejects the rate", func() {
		_, err := b.RequestRate(clock.Request{MinFreq: 900, MaxFreq: 1000})
		Expect(err).NotTo(HaveOccurred())

		_, err = a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})

		Expect(err).To(MatchError(clock.ErrRequestUnsatisfiable))
		Expect(events).To(BeEmpty())
		Expect(bus.Writes()).To(BeEmpty())
		Expect(tree.CachedRate(pll)).To(Equal(clock.Freq(1000)))
		Expect(tree.Constraint(a.Leaf())).To(Equal(clock.Loosest()))
	})

	It("should invoke hooks", func() {
		_, err := a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})
		Expect(err).NotTo(HaveOccurred())

		var (
			writes  []clock.HardwareWrite
			changes []clock.RateChange
			outcome clock.RequestOutcome
		)
		for _, ctx := range hookEvents {
			Expect(ctx.Domain).To(BeIdenticalTo(tree))

			switch item := ctx.Item.(type) {
			case clock.HardwareWrite:
				writes = append(writes, item)
			case clock.RateChange:
				changes = append(changes, item)
			case clock.RequestOutcome:
				outcome = item
			}
		}

		Expect(writes).To(Equal([]clock.HardwareWrite{
			{Node: "pll", Op: "set rate", Value: clock.Freq(200)},
		}))
		Expect(changes).To(ContainElement(clock.RateChange{
			Node: "pll", OldRate: 1000, NewRate: 200,
		}))
		Expect(outcome.Leaf).To(Equal("a"))
		Expect(outcome.Output).To(Equal(a.ID()))
		Expect(outcome.Rate).To(Equal(clock.Freq(200)))
		Expect(outcome.Err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Change notification across equal inputs", func() {
	It("should not report a switch that keeps the rate", func() {
		bus := clocksim.NewBus()

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "osc_a"},
			clocksim.NewFixedRoot("osc_a", bus, 1000))
		topo.AddRoot(clock.NodeSpec{Name: "osc_b"},
			clocksim.NewFixedRoot("osc_b", bus, 1000))
		topo.AddMux(clock.NodeSpec{Name: "mux"}, []string{"osc_a", "osc_b"},
			clocksim.NewMux("mux", bus, 2, 1))
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "mux", clock.OutputState{
			Name:     "first",
			Freq:     1000,
			Settings: []clock.Setting{{Node: "mux", Config: 0}},
		})

		tree := buildNegotiating(topo)

		var events []clock.Event
		out, err := tree.OutputByName("out", func(e clock.Event) error {
			events = append(events, e)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(out.ApplyNamedState("first")).To(Succeed())

		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "mux", Op: "configure", Value: 0},
		}))
		Expect(events).To(BeEmpty())
	})
})
