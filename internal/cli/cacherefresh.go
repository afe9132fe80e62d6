package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheRefreshWait bool

var cacheRefreshCmd = &cobra.Command{
	Use:   "cache-refresh <fqdn>...",
	Short: "Refresh the group cache for repositories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRefresh,
}

func init() {
	cacheRefreshCmd.Flags().BoolVar(&cacheRefreshWait, "wait", true, "wait for the refresh to finish")
	rootCmd.AddCommand(cacheRefreshCmd)
}

func runCacheRefresh(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := d.refresher.Trigger(ctx, args); err != nil {
		return fmt.Errorf("trigger refresh: %w", err)
	}
	cmd.Printf("Refreshing group cache for %d repository(ies)...\n", len(args))

	if !cacheRefreshWait {
		return nil
	}

	task, err := d.refresher.Await(ctx)
	if err != nil {
		return fmt.Errorf("refresh failed after %d/%d: %w", task.Done, task.Total, err)
	}

	for _, r := range task.Results {
		if r.Status == "success" {
			cmd.Printf("  %-30s ok\n", r.FQDN)
		} else {
			cmd.Printf("  %-30s %s (%s)\n", r.FQDN, r.Status, r.Code)
		}
	}
	cmd.Printf("Done: %d/%d repositories refreshed.\n", task.Done, task.Total)
	return nil
}
