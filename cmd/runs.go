package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect run history",
	Long:  "Commands for listing runs, viewing run details and per-run analytics.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
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

		campaignID, _ := cmd.Flags().GetString("campaign")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			CampaignID: campaignID,
			Status:     model.RunStatus(status),
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs analytics --

var runsAnalyticsCmd = &cobra.Command{
	Use:   "analytics <run-id>",
	Short: "Show the analytics snapshot written by a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		analytics, err := st.GetAnalyticsByRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs analytics")
		}
		if analytics == nil {
			return eris.Errorf("no analytics for run %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analytics)
	},
}

// -- runs posts --

var runsPostsCmd = &cobra.Command{
	Use:   "posts <run-id>",
	Short: "List posts first seen by a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		posts, err := st.ListPostsByRun(ctx, args[0], limit, 0)
		if err != nil {
			return eris.Wrap(err, "runs posts")
		}
		if len(posts) == 0 {
			fmt.Fprintln(os.Stderr, "No posts found.")
			return nil
		}

		formatPostsList(os.Stdout, posts)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("campaign", "", "filter by campaign id")
	runsListCmd.Flags().String("status", "", "filter by run status (running, completed, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsPostsCmd.Flags().Int("limit", 100, "max number of posts to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsAnalyticsCmd)
	runsCmd.AddCommand(runsPostsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCAMPAIGN\t#\tSTATUS\tURLS\tSCRAPED\tANALYZED\tFAILED\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := "-"
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.CampaignID, r.RunNumber, r.Status,
			r.Totals.URLsFound, r.Totals.PostsScraped, r.Totals.PostsAnalyzed, r.Totals.PostsFailed,
			r.StartedAt.Format(time.RFC3339), duration,
		)
	}
	_ = w.Flush()
}

// formatPostsList writes a tabular list of posts to w.
func formatPostsList(out io.Writer, posts []model.Post) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLATFORM\tURL\tSTATUS\tSENTIMENT\tSEEN\tENGAGEMENT")
	for _, p := range posts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%d\n",
			p.ID, p.Platform, p.PlatformURL, p.Analysis.Status,
			p.Analysis.SentimentScore, p.TotalAppearances, p.Engagement.Total(),
		)
	}
	_ = w.Flush()
}
