package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/clocktree/clock"
)

var showCmd = &cobra.Command{
	Use:   "show BOARD",
	Short: "Print every clock of a board with its current rate.",
	Long: "`show BOARD` lists the clocks in declaration order. The active " +
		"input of a multiplexer is marked with '*'.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBoard(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "board %s\n", b.Name)

		return printStatuses(cmd.OutOrStdout(), b.Tree.Snapshot())
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func printStatuses(out io.Writer, statuses []clock.NodeStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tKIND\tRATE\tUSAGE\tPARENTS\tSTATES")

	for _, s := range statuses {
		rate := s.Rate.String()
		if s.Error != "" {
			rate = "error"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Kind, rate, strconv.Itoa(s.Usage),
			orDash(parentList(s)), orDash(strings.Join(s.States, ",")))
	}

	return w.Flush()
}

func parentList(s clock.NodeStatus) string {
	parents := make([]string, len(s.Parents))
	for i, p := range s.Parents {
		if s.Kind == clock.KindMux.String() && i == s.Active {
			p = "*" + p
		}
		parents[i] = p
	}

	return strings.Join(parents, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
