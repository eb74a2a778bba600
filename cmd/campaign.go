package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/store"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Manage listening campaigns",
	Long:  "Commands for creating, listing, pausing, resuming and deleting campaigns.",
}

// -- campaign create --

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign",
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

		name, _ := cmd.Flags().GetString("name")
		query, _ := cmd.Flags().GetString("query")
		platforms, _ := cmd.Flags().GetStringSlice("platforms")
		interval, _ := cmd.Flags().GetInt("interval-minutes")
		dualSearch, _ := cmd.Flags().GetBool("dual-search")
		relevance, _ := cmd.Flags().GetBool("relevance-filter")
		threshold, _ := cmd.Flags().GetFloat64("relevance-threshold")
		limitSpecs, _ := cmd.Flags().GetStringSlice("fetch-limit")

		if query == "" {
			return eris.New("campaign create: --query is required")
		}
		if len(platforms) == 0 {
			return eris.New("campaign create: --platforms is required")
		}
		limits, err := parseFetchLimits(limitSpecs)
		if err != nil {
			return err
		}

		campaign := &model.Campaign{
			Name:      name,
			Query:     query,
			Platforms: platforms,
			Settings: model.CampaignSettings{
				FetchLimits:        limits,
				DualSearch:         dualSearch,
				RelevanceFilter:    relevance,
				RelevanceThreshold: threshold,
			},
			Schedule: model.Schedule{IntervalMinutes: interval},
			Status:   model.CampaignStatusActive,
		}

		if err := st.CreateCampaign(ctx, campaign); err != nil {
			return eris.Wrap(err, "campaign create")
		}

		zap.L().Info("campaign created",
			zap.String("campaign_id", campaign.ID),
			zap.String("query", campaign.Query),
			zap.Strings("platforms", campaign.Platforms),
		)
		fmt.Println(campaign.ID)
		return nil
	},
}

// -- campaign list --

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
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

		// List reads double as the sweep trigger, so stuck runs get
		// recovered even without the server running.
		sweepStuck(ctx, st)

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{
			Status: model.CampaignStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "campaign list")
		}

		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignList(os.Stdout, campaigns)
		return nil
	},
}

// -- campaign show --

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show full details of a campaign",
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

		campaign, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaign show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(campaign)
	},
}

// -- campaign pause / resume / delete --

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <campaign-id>",
	Short: "Pause a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCampaignStatus(cmd, args[0], model.CampaignStatusPaused)
	},
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <campaign-id>",
	Short: "Resume a paused campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCampaignStatus(cmd, args[0], model.CampaignStatusActive)
	},
}

var campaignDeleteCmd = &cobra.Command{
	Use:   "delete <campaign-id>",
	Short: "Delete a campaign and all its runs, posts and analytics",
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

		if err := st.DeleteCampaign(ctx, args[0]); err != nil {
			return eris.Wrap(err, "campaign delete")
		}
		zap.L().Info("campaign deleted", zap.String("campaign_id", args[0]))
		return nil
	},
}

func setCampaignStatus(cmd *cobra.Command, id string, status model.CampaignStatus) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	if err := st.UpdateCampaignStatus(ctx, id, status); err != nil {
		return eris.Wrapf(err, "campaign %s", status)
	}
	zap.L().Info("campaign status updated",
		zap.String("campaign_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

// sweepStuck force-fails runs that stopped making progress before the
// cutoff. Failures here are logged, never surfaced: the sweep is a side
// effect of listing.
func sweepStuck(ctx context.Context, st store.Store) {
	cutoff := time.Duration(cfg.Sweeper.CutoffMins) * time.Minute
	swept, err := st.SweepStuckRuns(ctx, cutoff)
	if err != nil {
		zap.L().Warn("sweeper failed", zap.Error(err))
		return
	}
	if swept > 0 {
		zap.L().Info("swept stuck runs", zap.Int("count", swept))
	}
}

// parseFetchLimits parses "platform=n" pairs.
func parseFetchLimits(specs []string) (map[string]int, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	limits := make(map[string]int, len(specs))
	for _, spec := range specs {
		name, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, eris.Errorf("campaign create: invalid fetch limit %q, expected platform=n", spec)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, eris.Errorf("campaign create: invalid fetch limit %q", spec)
		}
		limits[name] = n
	}
	return limits, nil
}

func formatCampaignList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tQUERY\tPLATFORMS\tSTATUS\tRUNS\tPOSTS\tLAST_RUN")
	for _, c := range campaigns {
		lastRun := "-"
		if c.Stats.LastRunAt != nil {
			lastRun = c.Stats.LastRunAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID, c.Name, c.Query, strings.Join(c.Platforms, ","),
			c.Status, c.Stats.TotalRuns, c.Stats.TotalPosts, lastRun,
		)
	}
	_ = w.Flush()
}

func init() {
	campaignCreateCmd.Flags().String("name", "", "human-readable campaign name")
	campaignCreateCmd.Flags().String("query", "", "listening query (required)")
	campaignCreateCmd.Flags().StringSlice("platforms", nil, "platforms to listen on (required, e.g. instagram,x,reddit)")
	campaignCreateCmd.Flags().Int("interval-minutes", 0, "automatic run interval; 0 means manual triggering only")
	campaignCreateCmd.Flags().Bool("dual-search", false, "also search the hashtag form of the query")
	campaignCreateCmd.Flags().Bool("relevance-filter", false, "discard records not topically relevant to the query")
	campaignCreateCmd.Flags().Float64("relevance-threshold", 0, "relevance similarity threshold (default from config)")
	campaignCreateCmd.Flags().StringSlice("fetch-limit", nil, "per-platform fetch cap as platform=n")

	campaignListCmd.Flags().String("status", "", "filter by status (active, paused)")
	campaignListCmd.Flags().Int("limit", 50, "max number of campaigns to display")

	campaignCmd.AddCommand(campaignCreateCmd)
	campaignCmd.AddCommand(campaignListCmd)
	campaignCmd.AddCommand(campaignShowCmd)
	campaignCmd.AddCommand(campaignPauseCmd)
	campaignCmd.AddCommand(campaignResumeCmd)
	campaignCmd.AddCommand(campaignDeleteCmd)
	rootCmd.AddCommand(campaignCmd)
}
