// Package cli implements the operator command line for the directory sync
// service.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/cacherefresh"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/client"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/config"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/history"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/pipeline"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/poller"
	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/validator"
)

var rootCmd = &cobra.Command{
	Use:   "syncadmin",
	Short: "Administer bulk user synchronisation",
	Long: `syncadmin drives bulk user synchronisation against a directory
service: upload a user file, review the computed diff, execute the
change set, and retrieve stored results.

Connection settings come from the environment (SYNC_BASE_URL,
SYNC_OPERATOR, SYNC_POLL_INTERVAL, SYNC_POLL_MAX_ATTEMPTS,
SYNC_PAGE_SIZE).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// deps bundles everything a command needs, built from the environment once
// per invocation.
type deps struct {
	cfg       *config.Config
	api       client.DirectoryAPI
	pipeline  *pipeline.Pipeline
	history   *history.Repository
	refresher *cacherefresh.Refresher
}

func buildDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	api := client.NewClient(client.Config{
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.HTTPTimeout,
		Operator: cfg.Operator,
	})
	poll := poller.New(cfg.PollInterval, cfg.PollMaxAttempts)

	return &deps{
		cfg:       cfg,
		api:       api,
		pipeline:  pipeline.New(api, validator.NewValidator(), poll, cfg.PageSize),
		history:   history.NewRepository(api, cfg.PageSize),
		refresher: cacherefresh.New(api, poll),
	}, nil
}
