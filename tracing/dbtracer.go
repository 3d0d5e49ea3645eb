// Package tracing records what a clock tree does into a database.
package tracing

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/datarecording"
)

// Table names used by DBTracer.
const (
	TableRateChanges = "clock_rate_changes"
	TableWrites      = "clock_writes"
	TableRequests    = "clock_requests"
	TablePower       = "clock_power"
)

// RateChangeEntry is a row of TableRateChanges.
type RateChangeEntry struct {
	Seq     int64
	Time    int64
	Node    string
	OldRate int64
	NewRate int64
}

// WriteEntry is a row of TableWrites.
type WriteEntry struct {
	Seq   int64
	Time  int64
	Node  string
	Op    string
	Value string
}

// RequestEntry is a row of TableRequests. Error is empty for granted
// requests.
type RequestEntry struct {
	Seq     int64
	Time    int64
	Output  string
	Leaf    string
	MinFreq int64
	MaxFreq int64
	MaxRank int64
	Ranked  bool
	Rate    int64
	Error   string
}

// PowerEntry is a row of TablePower.
type PowerEntry struct {
	Seq     int64
	Time    int64
	Node    string
	Powered bool
	Usage   int
}

// TimeTeller tells the time entries are stamped with.
type TimeTeller interface {
	CurrentTime() time.Time
}

type wallClock struct{}

func (wallClock) CurrentTime() time.Time {
	return time.Now()
}

// DBTracer is a clock.Hook that stores every event of a tree in a
// DataRecorder. Times are Unix microseconds.
type DBTracer struct {
	mu         sync.Mutex
	timeTeller TimeTeller
	backend    datarecording.DataRecorder

	isTracingFlag bool
	seq           int64
}

// NewDBTracer creates a DBTracer writing to dataRecorder and stamping entries
// with the wall clock. Tracing starts enabled.
func NewDBTracer(dataRecorder datarecording.DataRecorder) *DBTracer {
	return NewDBTracerWithTimeTeller(wallClock{}, dataRecorder)
}

// NewDBTracerWithTimeTeller creates a DBTracer with a custom time source.
func NewDBTracerWithTimeTeller(
	timeTeller TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable(TableRateChanges, RateChangeEntry{})
	dataRecorder.CreateTable(TableWrites, WriteEntry{})
	dataRecorder.CreateTable(TableRequests, RequestEntry{})
	dataRecorder.CreateTable(TablePower, PowerEntry{})

	t := &DBTracer{
		timeTeller:    timeTeller,
		backend:       dataRecorder,
		isTracingFlag: true,
	}

	atexit.Register(func() {
		t.Terminate()
	})

	return t
}

// IsTracing reports whether events are being recorded.
func (t *DBTracer) IsTracing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.isTracingFlag
}

// EnableTracing resumes recording.
func (t *DBTracer) EnableTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracingFlag = true
}

// StopTracing pauses recording. Events fired while paused are dropped.
func (t *DBTracer) StopTracing() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.isTracingFlag = false
}

// Terminate flushes what has been recorded.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}

// Func records the item of a hook invocation.
func (t *DBTracer) Func(ctx clock.HookCtx) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isTracingFlag {
		return
	}

	t.seq++
	now := t.timeTeller.CurrentTime().UnixMicro()

	switch item := ctx.Item.(type) {
	case clock.RateChange:
		t.backend.InsertData(TableRateChanges, RateChangeEntry{
			Seq:     t.seq,
			Time:    now,
			Node:    item.Node,
			OldRate: saturate(uint64(item.OldRate)),
			NewRate: saturate(uint64(item.NewRate)),
		})
	case clock.HardwareWrite:
		t.backend.InsertData(TableWrites, WriteEntry{
			Seq:   t.seq,
			Time:  now,
			Node:  item.Node,
			Op:    item.Op,
			Value: fmt.Sprint(item.Value),
		})
	case clock.RequestOutcome:
		entry := RequestEntry{
			Seq:     t.seq,
			Time:    now,
			Output:  item.Output,
			Leaf:    item.Leaf,
			MinFreq: saturate(uint64(item.Request.MinFreq)),
			MaxFreq: saturate(uint64(item.Request.MaxFreq)),
			MaxRank: saturate(uint64(item.Request.MaxRank)),
			Ranked:  item.Ranked,
			Rate:    saturate(uint64(item.Rate)),
		}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		t.backend.InsertData(TableRequests, entry)
	case clock.PowerChange:
		t.backend.InsertData(TablePower, PowerEntry{
			Seq:     t.seq,
			Time:    now,
			Node:    item.Node,
			Powered: item.On,
			Usage:   item.Usage,
		})
	default:
		t.seq--
	}
}

// saturate converts to the signed integers SQLite stores, clamping the open
// upper bounds of requests.
func saturate(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(v)
}
