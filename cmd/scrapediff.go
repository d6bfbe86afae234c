package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propsight/market-cli/internal/bulkdiff"
	"github.com/propsight/market-cli/internal/scrape"
)

var (
	scrapeDiffYear    int
	scrapeDiffLimit   int
	scrapeDiffPromote bool
	scrapeDiffForce   bool
)

var scrapeDiffCmd = &cobra.Command{
	Use:   "scrape-diff <scraper>",
	Short: "Scrape a source and diff it against the database",
	Long:  "Fetches the scraper's pages, extracts records in memory, and runs the bulk diff pipeline against the entity's table. With --promote the diff is applied under the same conflict gate as upload.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("diff"); err != nil {
			return err
		}

		scraper, err := buildRegistry().Get(args[0])
		if err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		syncer, err := buildSyncer(pool, scraper.EntityType())
		if err != nil {
			return err
		}

		f, closeFetcher, err := buildFetcher()
		if err != nil {
			return err
		}
		defer closeFetcher()

		urls, err := scraper.URLs(ctx, scrape.Config{Year: scrapeDiffYear, Limit: scrapeDiffLimit})
		if err != nil {
			return eris.Wrap(err, "list source urls")
		}
		if scrapeDiffLimit > 0 && len(urls) > scrapeDiffLimit {
			urls = urls[:scrapeDiffLimit]
		}

		var incoming []map[string]any
		for _, url := range urls {
			body, err := f.Fetch(ctx, url)
			if err != nil {
				return eris.Wrapf(err, "fetch %s", url)
			}
			results, err := scraper.Parse(url, body)
			if err != nil {
				return eris.Wrapf(err, "parse %s", url)
			}
			for _, res := range results {
				if res.ParseStatus == scrape.ParseFailed {
					zap.L().Warn("skipping failed extraction",
						zap.String("entity_key", res.EntityKey),
						zap.Strings("errors", res.ParseErrors),
					)
					continue
				}
				incoming = append(incoming, res.Extracted)
			}
		}

		report, err := diffDataset(ctx, syncer, incoming)
		if err != nil {
			return err
		}
		fmt.Println(report.Text())

		if !scrapeDiffPromote {
			return nil
		}

		summary, err := bulkdiff.Promote(ctx, syncer, report, bulkdiff.PromoteOptions{Force: scrapeDiffForce})
		if err != nil {
			return err
		}
		fmt.Printf("applied: %d inserted, %d updated, %d unchanged, %d missing kept, %d conflict-skipped\n",
			summary.Inserted, summary.Updated,
			summary.SkippedUnchanged, summary.SkippedMissing, summary.SkippedConflict)

		if !scrapeDiffForce && !report.CanAutoPromote() {
			fmt.Fprintln(os.Stderr, "blocking conflicts present; re-run with --force to apply")
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	scrapeDiffCmd.Flags().IntVar(&scrapeDiffYear, "year", 0, "restrict the source query to one year")
	scrapeDiffCmd.Flags().IntVar(&scrapeDiffLimit, "limit", 0, "max URLs to fetch")
	scrapeDiffCmd.Flags().BoolVar(&scrapeDiffPromote, "promote", false, "apply the diff to the database")
	scrapeDiffCmd.Flags().BoolVar(&scrapeDiffForce, "force", false, "apply conflicting changes and override the blocking gate")
	rootCmd.AddCommand(scrapeDiffCmd)
}
