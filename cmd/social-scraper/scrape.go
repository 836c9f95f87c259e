package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/scraper"
)

// withEngine opens the app, builds the engine and runs fn with it.
func withEngine(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, e *scraper.Engine) (any, error)) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	e, err := a.Engine()
	if err != nil {
		return err
	}
	result, err := fn(cmd.Context(), e)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), opts.output, result)
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search for users",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *scraper.Engine) (any, error) {
				return e.SearchUser(ctx, models.SearchRequest{Query: args[0], Limit: limit})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of users to return (default DEFAULT_USER_LIMIT)")
	return cmd
}

func newGraphCmd(opts *rootOptions, which string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   which + " <username>",
		Short: fmt.Sprintf("List the %s of a user", which),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *scraper.Engine) (any, error) {
				req := models.GraphRequest{Username: args[0], Limit: limit}
				if which == "followers" {
					return e.Followers(ctx, req)
				}
				return e.Following(ctx, req)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of users to return (default DEFAULT_USER_LIMIT)")
	return cmd
}

func newTimelineCmd(opts *rootOptions) *cobra.Command {
	var (
		count      int
		noAnalysis bool
	)

	cmd := &cobra.Command{
		Use:   "timeline <username>",
		Short: "Fetch recent tweets of a user with hashtag and mention stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, opts, func(ctx context.Context, e *scraper.Engine) (any, error) {
				analysis := !noAnalysis
				return e.Timeline(ctx, models.TimelineRequest{Username: args[0], Count: count, IncludeAnalysis: &analysis})
			})
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "number of tweets to analyze (default DEFAULT_TWEET_COUNT)")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "skip hashtag and mention statistics")
	return cmd
}
