package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

var (
	syncRepository string
	syncDeleteIDs  []string
	syncDeleteAll  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <file>",
	Short: "Upload a user file, review the diff, and execute it",
	Long: `Uploads a CSV or TSV user file, waits for server-side validation,
prints the computed diff, then executes the change set and waits for the
result. Users present in the directory but absent from the file are
deleted only when named with --delete or when --delete-all is set.

Execution is refused while the diff contains error rows.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVarP(&syncRepository, "repository", "r", "", "target repository id (required)")
	syncCmd.Flags().StringSliceVar(&syncDeleteIDs, "delete", nil, "missing user ids to delete (repeatable)")
	syncCmd.Flags().BoolVar(&syncDeleteAll, "delete-all", false, "delete every missing user")
	_ = syncCmd.MarkFlagRequired("repository")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	ctx := context.Background()

	path := args[0]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	cmd.Printf("Uploading %s to repository %s...\n", filepath.Base(path), syncRepository)
	if err := d.pipeline.Submit(ctx, file, filepath.Base(path), "", syncRepository); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	cmd.Println("Waiting for validation...")
	if err := d.pipeline.AwaitValidation(ctx); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	diff := d.pipeline.Diff()
	printSummary(cmd, diff.Summary())
	printRows(cmd, diff.Rows())

	missing := d.pipeline.Missing()
	if users := missing.Users(); len(users) > 0 {
		cmd.Printf("\nMissing users (%d):\n", len(users))
		for _, u := range users {
			cmd.Printf("  %s  %s\n", u.ID, u.Name)
		}
	}

	if syncDeleteAll {
		missing.SelectAll()
	} else {
		for _, id := range syncDeleteIDs {
			missing.Toggle(id)
		}
	}
	if n := missing.Count(); n > 0 {
		cmd.Printf("\nDeleting %d missing user(s).\n", n)
	}

	if err := d.pipeline.Execute(ctx); err != nil {
		return fmt.Errorf("execute refused: %w", err)
	}

	cmd.Println("Waiting for execution...")
	if err := d.pipeline.AwaitExecution(ctx); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	results := d.pipeline.Results()
	printSummary(cmd, results.Summary())
	info := d.pipeline.FileInfo()
	cmd.Printf("\nSync complete. History id: %s (operator %s)\n", d.pipeline.HistoryID(), info.Operator)
	return nil
}

func printSummary(cmd *cobra.Command, s domain.Summary) {
	cmd.Printf("\nSummary: create=%d update=%d delete=%d skip=%d error=%d (total %d)\n",
		s.Create, s.Update, s.Delete, s.Skip, s.Error, s.Total())
}

func printRows(cmd *cobra.Command, rows []domain.DiffRow) {
	for _, r := range rows {
		line := fmt.Sprintf("%5d  %-8s %-20s %s", r.Row, r.Category, r.UserID, r.Name)
		if r.Diagnostic != "" {
			line += "  [" + r.Diagnostic + "]"
		}
		cmd.Println(line)
	}
}
