package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propsight/market-cli/internal/promote"
	"github.com/propsight/market-cli/internal/scrape"
)

var (
	scrapeYear    int
	scrapeLimit   int
	scrapePromote bool
	scrapeList    bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <scraper>",
	Short: "Run an ingestion run for one scraper",
	Long:  "Fetches the scraper's source URLs, stages every extracted entity, and optionally promotes the run into canonical records.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		registry := buildRegistry()

		if scrapeList {
			for _, name := range registry.AllNames() {
				s, _ := registry.Get(name)
				fmt.Printf("%-24s %-20s %s\n", name, s.Domain(), s.EntityType())
			}
			return nil
		}
		if len(args) == 0 {
			return eris.New("scraper name required (or use --list)")
		}

		if err := cfg.Validate("scrape"); err != nil {
			return err
		}
		scraper, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		f, closeFetcher, err := buildFetcher()
		if err != nil {
			return err
		}
		defer closeFetcher()

		tiers, err := loadTrustTable()
		if err != nil {
			return err
		}

		store := scrape.NewPostgresStore(pool)
		engine := scrape.NewEngine(store, f, tiers, cfg.Scrape.Concurrency)

		run, err := engine.Run(ctx, scraper, scrape.Config{Year: scrapeYear, Limit: scrapeLimit})
		if err != nil {
			return eris.Wrap(err, "scrape run")
		}

		fmt.Printf("run %s: %d pages, %d items, %d errors\n",
			run.ID, run.PagesFetched, run.ItemsExtracted, run.Errors)

		if scrapePromote {
			rules, err := loadAuthorityTable()
			if err != nil {
				return err
			}
			pe := promote.NewEngine(promote.NewPostgresStore(pool), store, tiers, rules)
			summary, err := pe.PromoteRun(ctx, run.ID)
			if err != nil {
				return eris.Wrap(err, "promote run")
			}
			fmt.Printf("promoted: %d created, %d merged, %d skipped, %d queued for review\n",
				summary.Created, summary.Merged, summary.Skipped, summary.Queued)
			if summary.Errors > 0 {
				zap.L().Warn("promotion finished with errors", zap.Int("errors", summary.Errors))
				os.Exit(1)
			}
		}

		if run.Errors > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().IntVar(&scrapeYear, "year", 0, "restrict the source query to one year")
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "max URLs to fetch")
	scrapeCmd.Flags().BoolVar(&scrapePromote, "promote", false, "promote the run after staging")
	scrapeCmd.Flags().BoolVar(&scrapeList, "list", false, "list registered scrapers and exit")
	rootCmd.AddCommand(scrapeCmd)
}
