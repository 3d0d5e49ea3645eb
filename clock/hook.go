package clock

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// Hook positions fired by a Tree.
var (
	// HookPosRateChange fires when a Post notification writes a new cached
	// rate. Item is a RateChange.
	HookPosRateChange = &HookPos{Name: "RateChange"}

	// HookPosWrite fires right before a hardware write. Item is a
	// HardwareWrite.
	HookPosWrite = &HookPos{Name: "Write"}

	// HookPosRequest fires when a consumer request completes, granted or
	// not. Item is a RequestOutcome.
	HookPosRequest = &HookPos{Name: "Request"}

	// HookPosPower fires when a node is gated on or off. Item is a
	// PowerChange.
	HookPosPower = &HookPos{Name: "Power"}
)

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
	Detail any
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)
}

// Hook is a short piece of program that can be invoked by a hookable object.
//
// Trees invoke hooks while holding their lock. A hook must not call back into
// the tree's public API.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f(ctx).
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
type HookableBase struct {
	hooks []Hook
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// AcceptHook register a hook. Hooks are expected to be registered before the
// tree is shared between goroutines.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.hooks = append(h.hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// InvokeHook triggers the registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}

// RateChange is the item of HookPosRateChange.
type RateChange struct {
	Node    string
	OldRate Freq
	NewRate Freq
}

// HardwareWrite is the item of HookPosWrite.
type HardwareWrite struct {
	Node  string
	Op    string
	Value any
}

// RequestOutcome is the item of HookPosRequest.
type RequestOutcome struct {
	Output  string
	Leaf    string
	Request Request
	Ranked  bool
	Rate    Freq
	Err     error
}

// PowerChange is the item of HookPosPower.
type PowerChange struct {
	Node  string
	On    bool
	Usage int
}
