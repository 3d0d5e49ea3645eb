// Package clocksim provides simulated clock hardware. Its drivers implement
// the clock package's driver interfaces on top of plain registers and log
// every write on a shared Bus, which makes them suitable for board files,
// demos, and tests.
package clocksim

import (
	"fmt"
	"sync"
)

// Write is one hardware access logged on a Bus.
type Write struct {
	Node  string
	Op    string
	Value any
}

func (w Write) String() string {
	return fmt.Sprintf("%s.%s(%v)", w.Node, w.Op, w.Value)
}

// Bus records the writes of every driver attached to it and injects faults.
type Bus struct {
	mu     sync.Mutex
	writes []Write
	faults map[string]error
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{faults: make(map[string]error)}
}

// Writes returns the writes recorded so far, oldest first.
func (b *Bus) Writes() []Write {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Write(nil), b.writes...)
}

// Reset forgets the recorded writes.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes = nil
}

// FailNext makes the next write to the named node fail with err.
func (b *Bus) FailNext(node string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.faults[node] = err
}

// access logs a write, or consumes and returns a pending fault. A nil Bus
// accepts everything.
func (b *Bus) access(node, op string, value any) error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.faults[node]; ok {
		delete(b.faults, node)
		return err
	}

	b.writes = append(b.writes, Write{Node: node, Op: op, Value: value})

	return nil
}

// Gate is an on/off register. It is embedded by every simulated driver.
type Gate struct {
	name    string
	bus     *Bus
	powered bool
}

// SetPower switches the clock on or off.
func (g *Gate) SetPower(on bool) error {
	if err := g.bus.access(g.name, "power", on); err != nil {
		return err
	}

	g.powered = on

	return nil
}

// Powered reports whether the clock is switched on.
func (g *Gate) Powered() bool {
	return g.powered
}
