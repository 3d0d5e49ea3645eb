// Package monitoring turns a clock tree into a web server for inspecting and
// driving it.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarchlab/clocktree/board"
	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/monitoring/web"
)

var tracer = otel.Tracer("clocktree.monitoring")

// Monitor serves the state of a clock tree over HTTP and lets the page act as
// a consumer of its outputs.
type Monitor struct {
	tree       *clock.Tree
	metrics    *Metrics
	portNumber int

	outputsLock sync.Mutex
	outputs     map[string]*clock.Output
}

// NewMonitor creates a Monitor over a tree. It registers a metrics hook on
// the tree, so it must be created before the tree is shared.
func NewMonitor(tree *clock.Tree) *Monitor {
	m := &Monitor{
		tree:    tree,
		metrics: NewMetrics(),
		outputs: make(map[string]*clock.Output),
	}

	tree.AcceptHook(m.metrics)
	m.metrics.Observe(tree.Snapshot())

	return m
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// Handler returns the routes of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/nodes", m.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/api/node/{name}", m.nodeDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/output/{name}/request", m.requestRate).
		Methods(http.MethodPost)
	r.HandleFunc("/api/output/{name}/state/{state}", m.applyState).
		Methods(http.MethodPost)
	r.HandleFunc("/api/output/{name}/enable", m.enable).Methods(http.MethodPost)
	r.HandleFunc("/api/output/{name}/disable", m.disable).Methods(http.MethodPost)
	r.HandleFunc("/api/output/{name}/release", m.release).Methods(http.MethodPost)
	r.HandleFunc("/api/sweep", m.sweep).Methods(http.MethodPost)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(m.metrics.Registry(),
		promhttp.HandlerOpts{}))
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor in the background and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring clock tree with %s\n", url)

	handler := m.Handler()
	go func() {
		err := http.Serve(listener, handler)
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.tree.Snapshot())
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	id, ok := m.tree.Lookup(name)
	if !ok {
		http.Error(w, "Clock not found", http.StatusNotFound)
		return
	}

	status, err := m.tree.Status(id)
	dieOnErr(err)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(1)
	err = serializer.Serialize(w)
	dieOnErr(err)
}

type rateReq struct {
	Min     string `json:"min"`
	Max     string `json:"max,omitempty"`
	MaxRank uint64 `json:"max_rank,omitempty"`
	Ranked  bool   `json:"ranked,omitempty"`
}

type rateRsp struct {
	Output string     `json:"output"`
	Rate   clock.Freq `json:"rate"`
}

func (req rateReq) request() (clock.Request, error) {
	out := clock.Request{MaxFreq: clock.MaxFreq, MaxRank: clock.Rank(req.MaxRank)}

	var err error
	if out.MinFreq, err = board.ParseFreq(req.Min); err != nil {
		return out, err
	}

	if req.Max != "" {
		if out.MaxFreq, err = board.ParseFreq(req.Max); err != nil {
			return out, err
		}
	}

	return out, nil
}

func (m *Monitor) requestRate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	ctx, span := startSpan(r.Context(), "Monitor.RequestRate", name)
	defer span.End()

	var body rateReq
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, span, fmt.Errorf("%w: %w", clock.ErrInvalidArgument, err))
		return
	}

	req, err := body.request()
	if err != nil {
		fail(w, span, fmt.Errorf("%w: %w", clock.ErrInvalidArgument, err))
		return
	}

	o, err := m.output(ctx, name)
	if err != nil {
		fail(w, span, err)
		return
	}

	var rate clock.Freq
	if body.Ranked {
		rate, err = o.RequestRanked(req)
	} else {
		rate, err = o.RequestRate(req)
	}

	if err != nil {
		fail(w, span, err)
		return
	}

	span.SetAttributes(attribute.Int64("clock.rate", int64(rate)))
	writeJSON(w, http.StatusOK, rateRsp{Output: name, Rate: rate})
}

func (m *Monitor) applyState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	m.act(w, r, "Monitor.ApplyState", func(o *clock.Output) error {
		return o.ApplyNamedState(vars["state"])
	})
}

func (m *Monitor) enable(w http.ResponseWriter, r *http.Request) {
	m.act(w, r, "Monitor.Enable", (*clock.Output).Enable)
}

func (m *Monitor) disable(w http.ResponseWriter, r *http.Request) {
	m.act(w, r, "Monitor.Disable", (*clock.Output).Disable)
}

func (m *Monitor) release(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	_, span := startSpan(r.Context(), "Monitor.Release", name)
	defer span.End()

	m.outputsLock.Lock()
	o, ok := m.outputs[name]
	delete(m.outputs, name)
	m.outputsLock.Unlock()

	if ok {
		o.Release()
	}

	w.WriteHeader(http.StatusNoContent)
}

// act runs an operation on the monitor's consumer of the output named in the
// route.
func (m *Monitor) act(
	w http.ResponseWriter,
	r *http.Request,
	spanName string,
	op func(o *clock.Output) error,
) {
	name := mux.Vars(r)["name"]

	ctx, span := startSpan(r.Context(), spanName, name)
	defer span.End()

	o, err := m.output(ctx, name)
	if err != nil {
		fail(w, span, err)
		return
	}

	if err := op(o); err != nil {
		fail(w, span, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) sweep(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "Monitor.DisableUnused")
	defer span.End()

	if err := m.tree.DisableUnused(); err != nil {
		fail(w, span, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// output returns the consumer the monitor holds on an output, attaching one
// on first use.
func (m *Monitor) output(ctx context.Context, name string) (*clock.Output, error) {
	m.outputsLock.Lock()
	defer m.outputsLock.Unlock()

	if o, ok := m.outputs[name]; ok {
		return o, nil
	}

	o, err := m.tree.OutputByName(name, nil)
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).AddEvent("consumer attached",
		trace.WithAttributes(attribute.String("clock.consumer", o.ID())))

	m.outputs[name] = o

	return o, nil
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, http.StatusOK, prof)
}

func startSpan(
	ctx context.Context,
	name string,
	output string,
) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attribute.String("clock.output", output)))
}

// statusOf maps the error kinds of the clock package to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, clock.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, clock.ErrRequestUnsatisfiable):
		return http.StatusConflict
	case errors.Is(err, clock.ErrUnsupported),
		errors.Is(err, clock.ErrNotConfigurable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	http.Error(w, err.Error(), statusOf(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
