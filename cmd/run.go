package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runWait bool
)

var runCmd = &cobra.Command{
	Use:   "run <campaign-id>",
	Short: "Trigger a run for a campaign",
	Long:  "Starts one pipeline run, prints the run id, and stays attached until the run finishes. With --wait, also prints the final run record and exits non-zero on failure.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.Runner.TriggerRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "trigger run")
		}
		// The run executes on this process's worker pool; the store must
		// stay open until every dispatched run has finished.
		defer env.Runner.Wait()
		fmt.Println(runID)

		if !runWait {
			return nil
		}

		zap.L().Info("waiting for run", zap.String("run_id", runID))
		for {
			run, err := env.Store.GetRun(ctx, runID)
			if err != nil {
				return eris.Wrap(err, "poll run")
			}
			if run.Status.Terminal() {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(run); err != nil {
					return err
				}
				if run.Error != "" {
					return eris.Errorf("run failed: %s", run.Error)
				}
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	},
}

func init() {
	runCmd.Flags().BoolVar(&runWait, "wait", false, "block until the run completes or fails")
	rootCmd.AddCommand(runCmd)
}
