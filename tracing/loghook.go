package tracing

import (
	"log/slog"

	"github.com/sarchlab/clocktree/clock"
)

// A LogHook reports what a tree does to a structured logger, one record per
// hook invocation.
type LogHook struct {
	logger *slog.Logger
}

// NewLogHook creates a LogHook writing to logger.
func NewLogHook(logger *slog.Logger) *LogHook {
	return &LogHook{logger: logger}
}

// Func logs the item of a hook invocation.
func (h *LogHook) Func(ctx clock.HookCtx) {
	switch item := ctx.Item.(type) {
	case clock.RateChange:
		h.logger.Info("rate change", "clock", item.Node,
			"old", item.OldRate, "new", item.NewRate)
	case clock.HardwareWrite:
		h.logger.Info("hardware write", "clock", item.Node,
			"op", item.Op, "value", item.Value)
	case clock.RequestOutcome:
		if item.Err != nil {
			h.logger.Warn("request failed", "output", item.Leaf,
				"consumer", item.Output, "request", item.Request, "err", item.Err)
			return
		}

		h.logger.Info("request granted", "output", item.Leaf,
			"consumer", item.Output, "request", item.Request, "rate", item.Rate)
	case clock.PowerChange:
		h.logger.Info("power", "clock", item.Node,
			"on", item.On, "usage", item.Usage)
	}
}
