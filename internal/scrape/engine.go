package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/propsight/market-cli/internal/canonhash"
	"github.com/propsight/market-cli/internal/fetcher"
	"github.com/propsight/market-cli/internal/schemadiff"
	"github.com/propsight/market-cli/internal/trust"
)

// Engine drives ingestion runs: fetch each source URL, parse it, and stage
// every extracted entity. One bad page never aborts a run; one run failure
// never loses the pages already staged.
type Engine struct {
	store       Store
	fetcher     fetcher.Fetcher
	tiers       *trust.Table
	concurrency int
}

// NewEngine creates a scrape engine. Concurrency bounds the fetch+parse
// worker pool per run; per-domain politeness is the fetcher's job.
func NewEngine(store Store, f fetcher.Fetcher, tiers *trust.Table, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Engine{store: store, fetcher: f, tiers: tiers, concurrency: concurrency}
}

// Run executes one ingestion run for the scraper and returns the finished
// run record. Per-URL failures are counted and skipped; a top-level fault
// marks the run failed with the captured error and propagates.
func (e *Engine) Run(ctx context.Context, s Scraper, cfg Config) (*Run, error) {
	tier := e.tiers.TierOf(s.Domain())
	log := zap.L().With(
		zap.String("component", "scrape.engine"),
		zap.String("scraper", s.Name()),
		zap.String("tier", string(tier)),
	)

	run := &Run{
		Scraper:      s.Name(),
		SourceDomain: s.Domain(),
		SourceTier:   tier,
		SourceType:   SourceScrape,
		Config:       configSnapshot(cfg),
	}
	runID, err := e.store.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}
	run.ID = runID

	if err := e.store.StartRun(ctx, runID); err != nil {
		return nil, err
	}

	counters, err := e.process(ctx, s, cfg, runID, tier, log)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("run cancelled", zap.String("run_id", runID))
			if cErr := e.store.CancelRun(context.WithoutCancel(ctx), runID, counters); cErr != nil {
				log.Error("failed to record cancellation", zap.Error(cErr))
			}
			run.Status = RunCancelled
			return run, err
		}

		// Preserve message and trace on the run before re-raising.
		if fErr := e.store.FailRun(context.WithoutCancel(ctx), runID, counters, eris.ToString(err, true)); fErr != nil {
			log.Error("failed to record run failure", zap.Error(fErr))
		}
		run.Status = RunFailed
		return run, err
	}

	if err := e.store.CompleteRun(ctx, runID, counters); err != nil {
		return nil, err
	}
	run.Status = RunCompleted
	run.PagesFetched = counters.PagesFetched
	run.ItemsExtracted = counters.ItemsExtracted
	run.Errors = counters.Errors

	log.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("pages", counters.PagesFetched),
		zap.Int("items", counters.ItemsExtracted),
		zap.Int("errors", counters.Errors),
	)
	return run, nil
}

// process fetches, parses, and stages every URL. It returns whatever
// counters accumulated even on error, so partial progress is recorded.
func (e *Engine) process(ctx context.Context, s Scraper, cfg Config, runID string, tier trust.Tier, log *zap.Logger) (Counters, error) {
	var pagesFetched, itemsExtracted, errCount atomic.Int64

	collect := func() Counters {
		return Counters{
			PagesFetched:   int(pagesFetched.Load()),
			ItemsExtracted: int(itemsExtracted.Load()),
			Errors:         int(errCount.Load()),
		}
	}

	urls, err := s.URLs(ctx, cfg)
	if err != nil {
		return collect(), eris.Wrapf(err, "scrape: list urls for %s", s.Name())
	}
	if cfg.Limit > 0 && len(urls) > cfg.Limit {
		urls = urls[:cfg.Limit]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, url := range urls {
		// Cancellation is honored between URLs; an in-flight URL always
		// completes or fails whole.
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			if err := e.processURL(gctx, s, url, runID, tier, log, &pagesFetched, &itemsExtracted); err != nil {
				// Per-URL errors are counted and skipped, never fatal.
				errCount.Add(1)
				log.Warn("url failed", zap.String("url", url), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return collect(), err
	}
	if ctx.Err() != nil {
		return collect(), ctx.Err()
	}
	return collect(), nil
}

// processURL runs one fetch→parse→stage pipeline. Staging commits per URL,
// so partial progress survives a crash.
func (e *Engine) processURL(ctx context.Context, s Scraper, url, runID string, tier trust.Tier, log *zap.Logger, pages, items *atomic.Int64) error {
	body, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return eris.Wrap(err, "fetch")
	}
	pages.Add(1)

	results, err := s.Parse(url, body)
	if err != nil {
		return eris.Wrap(err, "parse")
	}

	for _, res := range results {
		if res.ParseStatus == "" {
			res.ParseStatus = ParseSuccess
		}
		// Extraction is counted here, not at promotion time.
		if res.ParseStatus == ParseSuccess || res.ParseStatus == ParsePartial {
			items.Add(1)
		}

		hash, err := canonhash.Hash(res.Extracted)
		if err != nil {
			return eris.Wrapf(err, "hash %s/%s", res.EntityType, res.EntityKey)
		}

		// Drift against the prior extraction from this source is advisory.
		// The upsert below overwrites it, so this is the last look.
		if prev, pErr := e.store.GetStaged(ctx, res.EntityType, res.EntityKey, s.Domain()); pErr == nil && prev != nil && prev.ContentHash != hash {
			if change := schemadiff.Diff(prev.Fields, res.Extracted, nil); change != nil && change.Type != schemadiff.ValueChange {
				log.Info("source schema drift",
					zap.String("entity_key", res.EntityKey),
					zap.String("drift", change.Summary()),
				)
			}
		}

		staged := &Staged{
			EntityType:   res.EntityType,
			EntityKey:    res.EntityKey,
			SourceDomain: s.Domain(),
			SourceTier:   tier,
			SourceURL:    res.SourceURL,
			RunID:        runID,
			Fields:       res.Extracted,
			ContentHash:  hash,
			ParseStatus:  res.ParseStatus,
			ParseErrors:  res.ParseErrors,
		}
		if err := e.store.UpsertStaged(ctx, staged); err != nil {
			return err
		}
	}
	return nil
}

func configSnapshot(cfg Config) map[string]any {
	snap := map[string]any{}
	if cfg.Limit > 0 {
		snap["limit"] = cfg.Limit
	}
	if cfg.Year > 0 {
		snap["year"] = cfg.Year
	}
	for k, v := range cfg.Params {
		snap[k] = v
	}
	if len(snap) == 0 {
		return nil
	}
	snap["snapshot_at"] = time.Now().UTC().Format(time.RFC3339)
	return snap
}
