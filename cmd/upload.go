package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/propsight/market-cli/internal/bulkdiff"
)

var (
	uploadPromote bool
	uploadForce   bool
	uploadDryRun  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <entityType> <file>",
	Short: "Diff an upload file and promote it into the database",
	Long:  "Diffs the file against the current table. With --promote, new rows are inserted and changed rows updated; blocking conflicts refuse the whole batch unless --force. Rows missing from the file are never deleted.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("upload"); err != nil {
			return err
		}

		incoming, err := loadRecords(args[1])
		if err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		syncer, err := buildSyncer(pool, args[0])
		if err != nil {
			return err
		}

		report, err := diffDataset(ctx, syncer, incoming)
		if err != nil {
			return err
		}
		fmt.Println(report.Text())

		// Dry runs never write, whatever else was asked for.
		if !uploadPromote && !uploadDryRun {
			return nil
		}

		summary, err := bulkdiff.Promote(ctx, syncer, report, bulkdiff.PromoteOptions{
			Force:  uploadForce,
			DryRun: uploadDryRun,
		})
		if err != nil {
			return err
		}

		verb := "applied"
		if uploadDryRun {
			verb = "would apply"
		}
		fmt.Printf("%s: %d inserted, %d updated, %d unchanged, %d missing kept, %d conflict-skipped\n",
			verb, summary.Inserted, summary.Updated,
			summary.SkippedUnchanged, summary.SkippedMissing, summary.SkippedConflict)

		if !uploadForce && !report.CanAutoPromote() {
			fmt.Fprintln(os.Stderr, "blocking conflicts present; re-run with --force to apply")
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadPromote, "promote", false, "write the diff to the database")
	uploadCmd.Flags().BoolVar(&uploadForce, "force", false, "apply conflicting changes and override the blocking gate")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "report what would happen without writing")
	rootCmd.AddCommand(uploadCmd)
}
