package cmd

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/datarecording"
	"github.com/sarchlab/clocktree/tracing"
)

var traceNode string

type traceRow struct {
	seq   int64
	time  int64
	event string
}

var traceCmd = &cobra.Command{
	Use:   "trace FILE",
	Short: "Print what a recorded trace database holds.",
	Long: "`trace FILE` reads a database written by `request --trace` and " +
		"prints its hardware writes, rate changes and requests in order.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}

		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		trace := tracing.NewTraceReader(reader)
		ctx := cmd.Context()

		writes, err := trace.Writes(ctx, traceNode)
		if err != nil {
			return err
		}

		changes, err := trace.RateChanges(ctx, traceNode)
		if err != nil {
			return err
		}

		requests, err := trace.Requests(ctx)
		if err != nil {
			return err
		}

		var rows []traceRow

		for _, e := range writes {
			rows = append(rows, traceRow{e.Seq, e.Time,
				fmt.Sprintf("write %s.%s(%s)", e.Node, e.Op, e.Value)})
		}

		for _, e := range changes {
			rows = append(rows, traceRow{e.Seq, e.Time,
				fmt.Sprintf("rate %s %s -> %s", e.Node,
					clock.Freq(e.OldRate), clock.Freq(e.NewRate))})
		}

		for _, e := range requests {
			outcome := "granted " + clock.Freq(e.Rate).String()
			if e.Error != "" {
				outcome = "failed: " + e.Error
			}

			rows = append(rows, traceRow{e.Seq, e.Time,
				fmt.Sprintf("request %s [%s, %s] %s", e.Leaf,
					clock.Freq(e.MinFreq), clock.Freq(e.MaxFreq), outcome)})
		}

		slices.SortFunc(rows, func(a, b traceRow) int {
			return cmp.Compare(a.seq, b.seq)
		})

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

		fmt.Fprintln(w, "SEQ\tTIME\tEVENT")

		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.seq, stamp(r.time), r.event)
		}

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringVar(&traceNode, "node", "",
		"Only show the writes and rate changes of one clock")
}

func stamp(micros int64) string {
	return time.UnixMicro(micros).Format("15:04:05.000000")
}
