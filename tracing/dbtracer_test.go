package tracing_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/clocksim"
	"github.com/sarchlab/clocktree/datarecording"
	"github.com/sarchlab/clocktree/tracing"
)

type fixedTime struct {
	now time.Time
}

func (f fixedTime) CurrentTime() time.Time {
	return f.now
}

var _ = Describe("DBTracer", func() {
	var (
		ctx      context.Context
		path     string
		recorder datarecording.DataRecorder
		tracer   *tracing.DBTracer
		a, b     *clock.Output
	)

	readBack := func() *tracing.TraceReader {
		tracer.Terminate()

		reader, err := datarecording.NewReader(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(reader.Close)

		return tracing.NewTraceReader(reader)
	}

	BeforeEach(func() {
		ctx = context.Background()

		dir, err := os.MkdirTemp("", "clocktree-tracing")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		path = filepath.Join(dir, "trace")
		recorder = datarecording.New(path)
		DeferCleanup(recorder.Close)

		tracer = tracing.NewDBTracerWithTimeTeller(
			fixedTime{now: time.Unix(100, 0)}, recorder)

		topo := clock.NewTopology()
		topo.AddRoot(clock.NodeSpec{Name: "pll"},
			clocksim.NewPLL("pll", clocksim.NewBus(), 1000, 100, 1000, 1))
		topo.AddLeaf(clock.NodeSpec{Name: "a"}, "pll")
		topo.AddLeaf(clock.NodeSpec{Name: "b"}, "pll")

		tree, err := clock.MakeBuilder().
			WithRuntime().
			WithSetRate().
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
			Build(topo)
		Expect(err).NotTo(HaveOccurred())

		tree.AcceptHook(tracer)

		a, err = tree.OutputByName("a", nil)
		Expect(err).NotTo(HaveOccurred())
		b, err = tree.OutputByName("b", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should record a granted request", func() {
		_, err := a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})
		Expect(err).NotTo(HaveOccurred())

		trace := readBack()

		writes, err := trace.Writes(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(writes).To(HaveLen(1))
		Expect(writes[0].Node).To(Equal("pll"))
		Expect(writes[0].Op).To(Equal("set rate"))
		Expect(writes[0].Value).To(Equal("200 Hz"))
		Expect(writes[0].Time).To(Equal(int64(100_000_000)))

		changes, err := trace.RateChanges(ctx, "pll")
		Expect(err).NotTo(HaveOccurred())
		Expect(changes).To(HaveLen(1))
		Expect(changes[0].OldRate).To(Equal(int64(1000)))
		Expect(changes[0].NewRate).To(Equal(int64(200)))
		Expect(changes[0].Seq).To(BeNumerically(">", writes[0].Seq))

		all, err := trace.RateChanges(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))

		requests, err := trace.Requests(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Output).To(Equal(a.ID()))
		Expect(requests[0].Leaf).To(Equal("a"))
		Expect(requests[0].MinFreq).To(Equal(int64(100)))
		Expect(requests[0].MaxFreq).To(Equal(int64(200)))
		Expect(requests[0].Rate).To(Equal(int64(200)))
		Expect(requests[0].Error).To(BeEmpty())
	})

	It("should record a rejected request", func() {
		_, err := a.RequestRate(clock.Request{MinFreq: 100, MaxFreq: 200})
		Expect(err).NotTo(HaveOccurred())
		_, err = b.RequestRate(clock.Request{MinFreq: 900, MaxFreq: clock.MaxFreq})
		Expect(err).To(MatchError(clock.ErrRequestUnsatisfiable))

		requests, err := readBack().Requests(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(requests).To(HaveLen(2))
		Expect(requests[1].Leaf).To(Equal("b"))
		Expect(requests[1].MaxFreq).To(Equal(int64(9223372036854775807)))
		Expect(requests[1].Rate).To(BeZero())
		Expect(requests[1].Error).NotTo(BeEmpty())
	})

	It("should record gate toggles", func() {
		Expect(a.Enable()).To(Succeed())
		Expect(a.Disable()).To(Succeed())

		power, err := readBack().PowerChanges(ctx, "pll")

		Expect(err).NotTo(HaveOccurred())
		Expect(power).To(HaveLen(2))
		Expect(power[0].Powered).To(BeTrue())
		Expect(power[0].Usage).To(Equal(1))
		Expect(power[1].Powered).To(BeFalse())
		Expect(power[1].Usage).To(Equal(0))
	})

	It("should drop events while stopped", func() {
		tracer.StopTracing()
		Expect(tracer.IsTracing()).To(BeFalse())
		Expect(a.Enable()).To(Succeed())

		tracer.EnableTracing()
		Expect(a.Disable()).To(Succeed())

		power, err := readBack().PowerChanges(ctx, "")

		Expect(err).NotTo(HaveOccurred())
		Expect(power).To(HaveLen(1))
		Expect(power[0].Seq).To(Equal(int64(1)))
		Expect(power[0].Powered).To(BeFalse())
	})
})
