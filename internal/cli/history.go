package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

var (
	historyPage       int
	historyCategories string
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a stored sync result",
	Long: `Fetches one page of a stored execution result by its history id.
Category codes for --categories: 0=create 1=delete 2=error 3=skip 4=update.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyPage, "page", 0, "0-based page index")
	historyCmd.Flags().StringVar(&historyCategories, "categories", "", "comma-separated category codes to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}

	filter, err := domain.ParseCategorySet(historyCategories)
	if err != nil {
		return fmt.Errorf("invalid --categories: %w", err)
	}

	result, err := d.history.FetchResult(context.Background(), args[0], historyPage, filter)
	if err != nil {
		return err
	}

	info := result.FileInfo
	cmd.Printf("File: %s  Operator: %s\n", info.FileName, info.Operator)
	cmd.Printf("Ran:  %s - %s\n",
		info.StartedAt.Local().Format("2006-01-02 15:04:05"),
		info.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	printSummary(cmd, result.Summary)
	printRows(cmd, result.Rows)
	return nil
}
