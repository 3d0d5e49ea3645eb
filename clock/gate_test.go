package clock_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/clocksim"
)

var _ = Describe("Gating", func() {
	var (
		bus        *clocksim.Bus
		pll        *clocksim.PLL
		divA, divB *clocksim.Divider
		tree       *clock.Tree
		a, b       *clock.Output
	)

	usage := func(name string) int {
		id, ok := tree.Lookup(name)
		Expect(ok).To(BeTrue())

		n, err := tree.Usage(id)
		Expect(err).NotTo(HaveOccurred())

		return n
	}

	BeforeEach(func() {
		bus = clocksim.NewBus()
		pll = clocksim.NewPLL("pll", bus, clock.MHz, clock.KHz, clock.GHz, clock.KHz)
		divA = clocksim.NewDivider("div_a", bus, 1, 4)
		divB = clocksim.NewDivider("div_b", bus, 1, 4)

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "pll"}, pll)
		topo.AddStandard(clock.NodeSpec{Name: "div_a"}, "pll", divA)
		topo.AddStandard(clock.NodeSpec{Name: "div_b"}, "pll", divB)
		topo.AddLeaf(clock.NodeSpec{Name: "a"}, "div_a")
		topo.AddLeaf(clock.NodeSpec{Name: "b"}, "div_b")

		var err error
		tree, err = clock.MakeBuilder().
			WithRuntime().
			WithLogger(quietLogger()).
			Build(topo)
		Expect(err).NotTo(HaveOccurred())

		a, err = tree.OutputByName("a", nil)
		Expect(err).NotTo(HaveOccurred())
		b, err = tree.OutputByName("b", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should count references", func() {
		Expect(a.Enable()).To(Succeed())
		Expect(a.Enable()).To(Succeed())
		Expect(a.Disable()).To(Succeed())

		Expect(usage("div_a")).To(Equal(1))
		Expect(usage("pll")).To(Equal(1))
		Expect(divA.Powered()).To(BeTrue())
		Expect(pll.Powered()).To(BeTrue())

		Expect(a.Disable()).To(Succeed())

		Expect(usage("div_a")).To(Equal(0))
		Expect(divA.Powered()).To(BeFalse())
		Expect(pll.Powered()).To(BeFalse())
	})

	It("should only write on the first and last reference", func() {
		Expect(a.Enable()).To(Succeed())
		Expect(b.Enable()).To(Succeed())
		Expect(a.Disable()).To(Succeed())

		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "pll", Op: "power", Value: true},
			{Node: "div_a", Op: "power", Value: true},
			{Node: "div_b", Op: "power", Value: true},
			{Node: "div_a", Op: "power", Value: false},
		}))
		Expect(usage("pll")).To(Equal(1))
		Expect(pll.Powered()).To(BeTrue())
	})

	It("should reject unbalanced disables", func() {
		Expect(a.Disable()).To(MatchError(clock.ErrInvalidArgument))
	})

	It("should undo a failed enable", func() {
		nack := errors.New("nack")
		bus.FailNext("div_a", nack)

		err := a.Enable()

		Expect(err).To(MatchError(clock.ErrHardwareFailure))
		Expect(err).To(MatchError(nack))
		Expect(usage("div_a")).To(Equal(0))
		Expect(usage("pll")).To(Equal(0))
		Expect(pll.Powered()).To(BeFalse())
	})

	It("should ignore released consumers", func() {
		Expect(a.Enable()).To(Succeed())

		stale, err := tree.OutputByName("a", nil)
		Expect(err).NotTo(HaveOccurred())
		stale.Release()

		Expect(stale.Enable()).To(MatchError(clock.ErrInvalidArgument))
		Expect(stale.Disable()).To(MatchError(clock.ErrInvalidArgument))
		Expect(usage("div_a")).To(Equal(1))
		Expect(divA.Powered()).To(BeTrue())
	})

	It("should gate off unused clocks", func() {
		Expect(divB.SetPower(true)).To(Succeed())
		Expect(a.Enable()).To(Succeed())

		Expect(tree.DisableUnused()).To(Succeed())

		Expect(divB.Powered()).To(BeFalse())
		Expect(divA.Powered()).To(BeTrue())
		Expect(pll.Powered()).To(BeTrue())
	})
})

var _ = Describe("Gating across a mux switch", func() {
	var (
		bus        *clocksim.Bus
		oscA, oscB *clocksim.FixedRoot
		tree       *clock.Tree
		output     *clock.Output
	)

	usage := func(name string) int {
		id, ok := tree.Lookup(name)
		Expect(ok).To(BeTrue())

		n, err := tree.Usage(id)
		Expect(err).NotTo(HaveOccurred())

		return n
	}

	BeforeEach(func() {
		bus = clocksim.NewBus()
		oscA = clocksim.NewFixedRoot("osc_a", bus, 10*clock.MHz)
		oscB = clocksim.NewFixedRoot("osc_b", bus, 20*clock.MHz)

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "osc_a"}, oscA)
		topo.AddRoot(clock.NodeSpec{Name: "osc_b"}, oscB)
		topo.AddMux(clock.NodeSpec{Name: "mux"}, []string{"osc_a", "osc_b"},
			clocksim.NewMux("mux", bus, 2, 1))
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "mux", clock.OutputState{
			Name:     "slow",
			Freq:     10 * clock.MHz,
			Settings: []clock.Setting{{Node: "mux", Config: 0}},
		})

		var err error
		tree, err = clock.MakeBuilder().
			WithRuntime().
			WithSetRate().
			WithLogger(quietLogger()).
			Build(topo)
		Expect(err).NotTo(HaveOccurred())

		output, err = tree.OutputByName("out", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(output.Enable()).To(Succeed())
		bus.Reset()
	})

	It("should move references when negotiation switches inputs", func() {
		_, err := output.RequestRate(clock.Request{
			MinFreq: 9 * clock.MHz,
			MaxFreq: 10 * clock.MHz,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "osc_a", Op: "power", Value: true},
			{Node: "mux", Op: "select", Value: 0},
			{Node: "osc_b", Op: "power", Value: false},
		}))
		Expect(usage("osc_a")).To(Equal(1))
		Expect(usage("osc_b")).To(Equal(0))

		bus.Reset()
		Expect(output.Disable()).To(Succeed())

		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "mux", Op: "power", Value: false},
			{Node: "osc_a", Op: "power", Value: false},
		}))
		Expect(usage("osc_a")).To(Equal(0))
	})

	It("should move references when a state switches inputs", func() {
		Expect(output.ApplyNamedState("slow")).To(Succeed())

		Expect(bus.Writes()).To(Equal([]clocksim.Write{
			{Node: "osc_a", Op: "power", Value: true},
			{Node: "mux", Op: "configure", Value: 0},
			{Node: "osc_b", Op: "power", Value: false},
		}))

		Expect(tree.DisableUnused()).To(Succeed())

		Expect(oscA.Powered()).To(BeTrue())
		Expect(oscB.Powered()).To(BeFalse())
		Expect(usage("mux")).To(Equal(1))
	})

	It("should keep the old input when the switch fails", func() {
		nack := errors.New("nack")
		bus.FailNext("mux", nack)

		err := output.ApplyNamedState("slow")

		Expect(err).To(MatchError(nack))
		Expect(usage("osc_a")).To(Equal(0))
		Expect(usage("osc_b")).To(Equal(1))
		Expect(oscA.Powered()).To(BeFalse())
		Expect(oscB.Powered()).To(BeTrue())
	})
})

type gatedMux struct {
	*MockMuxDriver
	*MockGate
}

var _ = Describe("Gating behind a mux", func() {
	var (
		mockCtrl *gomock.Controller
		muxDrv   *MockMuxDriver
		muxGate  *MockGate
		root     *MockRootDriver
		rootGate *MockGate
		tree     *clock.Tree
		output   *clock.Output
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		muxDrv = NewMockMuxDriver(mockCtrl)
		muxGate = NewMockGate(mockCtrl)
		root = NewMockRootDriver(mockCtrl)
		rootGate = NewMockGate(mockCtrl)

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "osc"},
			struct {
				*MockRootDriver
				*MockGate
			}{root, rootGate})
		topo.AddMux(clock.NodeSpec{Name: "mux"}, []string{"osc"},
			gatedMux{muxDrv, muxGate})
		topo.AddLeaf(clock.NodeSpec{Name: "out"}, "mux")

		var err error
		tree, err = clock.MakeBuilder().
			WithRuntime().
			WithLogger(quietLogger()).
			Build(topo)
		Expect(err).NotTo(HaveOccurred())

		output, err = tree.OutputByName("out", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should stop at a disconnected mux", func() {
		muxDrv.EXPECT().ActiveParent().Return(clock.Disconnected, nil).AnyTimes()
		muxGate.EXPECT().SetPower(true).Return(nil)

		Expect(output.Enable()).To(Succeed())
	})

	It("should power the selected input", func() {
		muxDrv.EXPECT().ActiveParent().Return(0, nil).AnyTimes()
		gomock.InOrder(
			rootGate.EXPECT().SetPower(true).Return(nil),
			muxGate.EXPECT().SetPower(true).Return(nil),
		)

		Expect(output.Enable()).To(Succeed())
	})

	It("should sweep every unused gate once", func() {
		rootGate.EXPECT().SetPower(false).Return(nil)
		muxGate.EXPECT().SetPower(false).Return(nil)

		Expect(tree.DisableUnused()).To(Succeed())
	})

	It("should keep sweeping past failures", func() {
		nack := errors.New("nack")
		rootGate.EXPECT().SetPower(false).Return(nack)
		muxGate.EXPECT().SetPower(false).Return(nil)

		err := tree.DisableUnused()

		Expect(err).To(MatchError(nack))
	})
})
