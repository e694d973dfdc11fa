package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"assetpipe/internal/service/cleanup"
)

var incompleteCmd = &cobra.Command{
	Use:   "incomplete",
	Short: "List incomplete multipart uploads",
	Long: `List multipart uploads that were started but never completed or aborted.

Example:
  assetctl incomplete --older-than 24h --group`,
	RunE: runIncomplete,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Abort incomplete multipart uploads",
	Long: `Abort every incomplete multipart upload older than the threshold.

Example:
  assetctl cleanup --older-than 72h`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(incompleteCmd)
	rootCmd.AddCommand(cleanupCmd)

	incompleteCmd.Flags().Duration("older-than", 0, "Only list uploads initiated before now minus this duration")
	incompleteCmd.Flags().Bool("group", false, "Group uploads by directory")
	cleanupCmd.Flags().Duration("older-than", 24*time.Hour, "Abort uploads initiated before now minus this duration")
}

func runIncomplete(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	group, _ := cmd.Flags().GetBool("group")

	uploads, err := newClient(cmd).ListIncomplete(cmd.Context(), int64(olderThan/time.Second))
	if err != nil {
		return err
	}
	if len(uploads) == 0 {
		fmt.Println("No incomplete uploads")
		return nil
	}

	if group {
		for _, g := range cleanup.GroupByDirectory(uploads) {
			dir := g.Directory
			if dir == "" {
				dir = "(root)"
			}
			fmt.Printf("%s  (%d)\n", dir, g.Count)
			for _, u := range g.Uploads {
				fmt.Printf("    %-48s %s\n", u.ObjectKey, humanize.Time(u.InitiatedAt))
			}
		}
		return nil
	}

	fmt.Printf("%-48s %-38s %s\n", "OBJECT KEY", "UPLOAD ID", "INITIATED")
	for _, u := range uploads {
		fmt.Printf("%-48s %-38s %s\n", u.ObjectKey, u.UploadID, humanize.Time(u.InitiatedAt))
	}
	fmt.Printf("\n%d incomplete upload(s)\n", len(uploads))
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}

	res, err := newClient(cmd).Cleanup(cmd.Context(), int64(olderThan/time.Second))
	if err != nil {
		return err
	}
	for _, d := range res.Details {
		if d.Error != "" {
			fmt.Printf("  failed   %s: %s\n", d.ObjectKey, d.Error)
		}
	}
	fmt.Printf("Aborted %d of %d upload(s) older than %s, %d failed\n", res.Cleaned, res.Total, olderThan, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d abort(s) failed", res.Failed)
	}
	return nil
}
