package tracing_test

import (
	"bytes"
	"errors"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/tracing"
)

var _ = Describe("LogHook", func() {
	var (
		buf  *bytes.Buffer
		hook *tracing.LogHook
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		hook = tracing.NewLogHook(slog.New(slog.NewTextHandler(buf, nil)))
	})

	It("should log hardware writes", func() {
		hook.Func(clock.HookCtx{
			Pos:  clock.HookPosWrite,
			Item: clock.HardwareWrite{Node: "pll", Op: "set rate", Value: clock.Freq(200)},
		})

		Expect(buf.String()).To(ContainSubstring(`msg="hardware write"`))
		Expect(buf.String()).To(ContainSubstring("clock=pll"))
		Expect(buf.String()).To(ContainSubstring(`value="200 Hz"`))
	})

	It("should warn about failed requests", func() {
		hook.Func(clock.HookCtx{
			Pos: clock.HookPosRequest,
			Item: clock.RequestOutcome{
				Leaf: "uart",
				Err:  errors.New("busy"),
			},
		})

		Expect(buf.String()).To(ContainSubstring("level=WARN"))
		Expect(buf.String()).To(ContainSubstring("err=busy"))
	})

	It("should ignore unknown items", func() {
		hook.Func(clock.HookCtx{Item: 42})

		Expect(buf.String()).To(BeEmpty())
	})
})
