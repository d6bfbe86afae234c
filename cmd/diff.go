package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	diffJSON     bool
	diffMarkdown bool
)

var diffCmd = &cobra.Command{
	Use:   "diff <entityType> <file>",
	Short: "Diff an upload file against the database without writing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("diff"); err != nil {
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

		switch {
		case diffJSON:
			out, err := report.JSON()
			if err != nil {
				return err
			}
			fmt.Println(out)
		case diffMarkdown:
			fmt.Println(report.Markdown())
		default:
			fmt.Println(report.Text())
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "emit the report as JSON")
	diffCmd.Flags().BoolVar(&diffMarkdown, "markdown", false, "emit the report as markdown")
	diffCmd.MarkFlagsMutuallyExclusive("json", "markdown")
	rootCmd.AddCommand(diffCmd)
}
