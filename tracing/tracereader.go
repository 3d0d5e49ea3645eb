package tracing

import (
	"context"

	"github.com/sarchlab/clocktree/datarecording"
)

// TraceReader reads back the tables a DBTracer wrote.
type TraceReader struct {
	reader datarecording.DataReader
}

// NewTraceReader wraps a DataReader and maps the trace tables on it.
func NewTraceReader(reader datarecording.DataReader) *TraceReader {
	reader.MapTable(TableRateChanges, RateChangeEntry{})
	reader.MapTable(TableWrites, WriteEntry{})
	reader.MapTable(TableRequests, RequestEntry{})
	reader.MapTable(TablePower, PowerEntry{})

	return &TraceReader{reader: reader}
}

// RateChanges lists the rate changes of a node, or of every node when node
// is empty, in recording order.
func (r *TraceReader) RateChanges(
	ctx context.Context,
	node string,
) ([]RateChangeEntry, error) {
	return list[RateChangeEntry](ctx, r.reader, TableRateChanges, nodeFilter(node))
}

// Writes lists the hardware writes in recording order.
func (r *TraceReader) Writes(ctx context.Context, node string) ([]WriteEntry, error) {
	return list[WriteEntry](ctx, r.reader, TableWrites, nodeFilter(node))
}

// Requests lists the request outcomes in recording order.
func (r *TraceReader) Requests(ctx context.Context) ([]RequestEntry, error) {
	return list[RequestEntry](ctx, r.reader, TableRequests,
		datarecording.QueryParams{OrderBy: "Seq"})
}

// PowerChanges lists the gate toggles in recording order.
func (r *TraceReader) PowerChanges(ctx context.Context, node string) ([]PowerEntry, error) {
	return list[PowerEntry](ctx, r.reader, TablePower, nodeFilter(node))
}

func nodeFilter(node string) datarecording.QueryParams {
	params := datarecording.QueryParams{OrderBy: "Seq"}
	if node != "" {
		params.Where = "Node = ?"
		params.Args = []any{node}
	}

	return params
}

func list[T any](
	ctx context.Context,
	reader datarecording.DataReader,
	table string,
	params datarecording.QueryParams,
) ([]T, error) {
	results, _, err := reader.Query(ctx, table, params)
	if err != nil {
		return nil, err
	}

	entries := make([]T, 0, len(results))
	for _, r := range results {
		entries = append(entries, *r.(*T))
	}

	return entries, nil
}
