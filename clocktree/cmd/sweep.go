package cmd

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep BOARD",
	Short: "Gate off every clock no output uses and print the writes.",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error {
		b, err := loadBoard(args[0])
		if err != nil {
			return err
		}

		err = b.Tree.DisableUnused()
		printWrites(cmd, b.Bus)

		return err
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
