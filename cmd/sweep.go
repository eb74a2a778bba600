package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Force-fail runs stuck in running status",
	Long:  "Transitions running runs with no progress within the cutoff to failed. The same sweep also happens opportunistically on campaign list reads and on a timer in serve mode.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cutoff, _ := cmd.Flags().GetDuration("cutoff")
		if cutoff <= 0 {
			cutoff = time.Duration(cfg.Sweeper.CutoffMins) * time.Minute
		}

		swept, err := st.SweepStuckRuns(ctx, cutoff)
		if err != nil {
			return eris.Wrap(err, "sweep")
		}
		fmt.Printf("swept %d stuck run(s)\n", swept)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Duration("cutoff", 0, "age threshold for stuck runs (default from config)")
	rootCmd.AddCommand(sweepCmd)
}
