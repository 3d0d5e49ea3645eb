package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/clocktree/board"
	"github.com/sarchlab/clocktree/clock"
	"github.com/sarchlab/clocktree/clocksim"
	"github.com/sarchlab/clocktree/datarecording"
	"github.com/sarchlab/clocktree/tracing"
)

var (
	requestOutput  string
	requestMin     string
	requestMax     string
	requestMaxRank uint64
	requestRanked  bool
	requestTrace   string
)

var requestCmd = &cobra.Command{
	Use:   "request BOARD",
	Short: "Request a rate window on an output and print the hardware writes.",
	Long: "`request BOARD --output NAME --min FREQ [--max FREQ]` attaches a " +
		"consumer to an output, requests the window, and prints the granted " +
		"rate followed by every register write it took. Frequencies accept SI " +
		"suffixes such as 48MHz.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := parseRequest()
		if err != nil {
			return err
		}

		b, err := loadBoard(args[0])
		if err != nil {
			return err
		}

		tracePath := requestTrace
		if !cmd.Flags().Changed("trace") {
			tracePath = envOr(envTraceDB, "")
		}

		if tracePath != "" {
			tracer, err := attachTracer(b.Tree, tracePath)
			if err != nil {
				return err
			}
			defer tracer.Terminate()
		}

		o, err := b.Tree.OutputByName(requestOutput, nil)
		if err != nil {
			return err
		}

		var rate clock.Freq
		if requestRanked {
			rate, err = o.RequestRanked(req)
		} else {
			rate, err = o.RequestRate(req)
		}

		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", requestOutput, rate)
		printWrites(cmd, b.Bus)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)

	requestCmd.Flags().StringVarP(&requestOutput, "output", "o", "",
		"Name of the output to request")
	requestCmd.Flags().StringVar(&requestMin, "min", "0",
		"Lowest acceptable frequency")
	requestCmd.Flags().StringVar(&requestMax, "max", "",
		"Highest acceptable frequency, unbounded if empty")
	requestCmd.Flags().Uint64Var(&requestMaxRank, "max-rank", 0,
		"Highest acceptable accumulated rank, 0 for no ceiling")
	requestCmd.Flags().BoolVar(&requestRanked, "ranked", false,
		"Prefer the lowest rank over the closest rate")
	requestCmd.Flags().StringVar(&requestTrace, "trace", "",
		"Record the tree's activity into FILE.sqlite3 (default $"+
			envTraceDB+")")

	_ = requestCmd.MarkFlagRequired("output")
}

func parseRequest() (clock.Request, error) {
	req := clock.Request{MaxFreq: clock.MaxFreq, MaxRank: clock.Rank(requestMaxRank)}

	var err error
	if req.MinFreq, err = board.ParseFreq(requestMin); err != nil {
		return req, fmt.Errorf("invalid --min: %w", err)
	}

	if requestMax != "" {
		if req.MaxFreq, err = board.ParseFreq(requestMax); err != nil {
			return req, fmt.Errorf("invalid --max: %w", err)
		}
	}

	return req, nil
}

// attachTracer records the tree into path.sqlite3, which must not exist yet.
func attachTracer(tree *clock.Tree, path string) (*tracing.DBTracer, error) {
	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("trace database %s already exists", filename)
	}

	tracer := tracing.NewDBTracer(datarecording.New(path))
	tree.AcceptHook(tracer)

	return tracer, nil
}

func printWrites(cmd *cobra.Command, bus *clocksim.Bus) {
	writes := bus.Writes()
	if len(writes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no writes")
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "writes:")
	for _, w := range writes {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", w)
	}
}
