package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justmadeid/social-services/internal/version"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	output   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "social-scraper",
		Short: "Scrape public profiles, follow graphs and timelines through a logged-in browser session",
		Long: `social-scraper drives a headless browser to collect user search results,
following/followers lists and timelines, caches the results, and serves them
through a task-queue HTTP API.

Configuration comes from the environment (and .env files). See 'serve' for the API.`,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (want table, json or yaml)", opts.output)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format (table, json, yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newServeCmd(opts),
		newSearchCmd(opts),
		newGraphCmd(opts, "following"),
		newGraphCmd(opts, "followers"),
		newTimelineCmd(opts),
		newLoginCmd(opts),
		newSessionCmd(opts),
		newCredentialsCmd(opts),
		newCacheCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}
