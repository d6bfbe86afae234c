package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/propsight/market-cli/internal/authority"
	"github.com/propsight/market-cli/internal/bulkdiff"
	"github.com/propsight/market-cli/internal/fetcher"
	"github.com/propsight/market-cli/internal/geo"
	"github.com/propsight/market-cli/internal/glstender"
	"github.com/propsight/market-cli/internal/promote"
	"github.com/propsight/market-cli/internal/scrape"
	"github.com/propsight/market-cli/internal/trust"
	"github.com/propsight/market-cli/internal/verify"
	"github.com/propsight/market-cli/pkg/datagov"
	"github.com/propsight/market-cli/pkg/edgeprop"
	"github.com/propsight/market-cli/pkg/ninetynine"
	"github.com/propsight/market-cli/pkg/propertyguru"
	"github.com/propsight/market-cli/pkg/ura"
)

// initPool connects to Postgres. The caller owns the pool.
func initPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping postgres")
	}
	return pool, nil
}

// loadTrustTable returns the configured tier table, or the built-in one.
func loadTrustTable() (*trust.Table, error) {
	if cfg.Trust.TableFile == "" {
		return trust.DefaultTable(), nil
	}
	return trust.LoadTable(cfg.Trust.TableFile)
}

// loadAuthorityTable returns the configured authority matrix, or the
// built-in one.
func loadAuthorityTable() (*authority.Table, error) {
	if cfg.Authority.MatrixFile == "" {
		return authority.DefaultTable(), nil
	}
	return authority.LoadTable(cfg.Authority.MatrixFile)
}

// buildFetcher assembles the shared fetcher, wrapping it in the sqlite page
// cache when one is configured. The returned closer is a no-op without a
// cache.
func buildFetcher() (fetcher.Fetcher, func(), error) {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:     cfg.Scrape.UserAgent,
		Timeout:       time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
		MaxRetries:    cfg.Scrape.Retries,
		RatePerDomain: rate.Limit(cfg.Scrape.RatePerHost),
	})
	if cfg.Scrape.CachePath == "" {
		return httpFetcher, func() {}, nil
	}

	cached, err := fetcher.NewCachedFetcher(httpFetcher, cfg.Scrape.CachePath,
		time.Duration(cfg.Scrape.CacheTTLHours)*time.Hour)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open page cache")
	}
	return cached, func() { _ = cached.Close() }, nil
}

// buildRegistry registers every known scraper.
func buildRegistry() *scrape.Registry {
	reg := scrape.NewRegistry()
	reg.Register(ura.NewGLSScraper())
	reg.Register(datagov.NewResaleScraper())
	reg.Register(propertyguru.NewProjectScraper(propertyguru.NewClient()))
	return reg
}

// buildAdapters assembles the verification adapters named in config.
func buildAdapters() []verify.Adapter {
	var adapters []verify.Adapter
	for _, name := range cfg.Verify.Adapters {
		switch name {
		case "propertyguru":
			adapters = append(adapters, propertyguru.NewAdapter(propertyguru.NewClient()))
		case "99co":
			adapters = append(adapters, ninetynine.NewAdapter())
		case "edgeprop":
			adapters = append(adapters, edgeprop.NewAdapter())
		default:
			zap.L().Warn("unknown verification adapter, skipping", zap.String("adapter", name))
		}
	}
	return adapters
}

// buildPromoteEngine assembles the promotion engine with the configured
// trust and authority tables.
func buildPromoteEngine(pool *pgxpool.Pool) (*promote.Engine, error) {
	tiers, err := loadTrustTable()
	if err != nil {
		return nil, err
	}
	rules, err := loadAuthorityTable()
	if err != nil {
		return nil, err
	}
	return promote.NewEngine(promote.NewPostgresStore(pool), scrape.NewPostgresStore(pool), tiers, rules), nil
}

// buildSyncer returns the bulk-pipeline syncer for an entity type. Only
// tables with a natural key and a flat schema support the bulk path.
func buildSyncer(pool *pgxpool.Pool, entityType string) (bulkdiff.Syncer, error) {
	switch entityType {
	case "gls_tender":
		return glstender.NewSyncer(pool, loadDistrictIndex()), nil
	default:
		return nil, eris.Errorf("no bulk syncer for entity type %q", entityType)
	}
}

// loadDistrictIndex loads the shapefile-backed district index when one is
// configured. A nil index just disables district backfill.
func loadDistrictIndex() *geo.DistrictIndex {
	if cfg.Geo.DistrictShapefile == "" {
		return nil
	}
	idx, err := geo.LoadDistricts(cfg.Geo.DistrictShapefile)
	if err != nil {
		zap.L().Warn("district shapefile unavailable, skipping district backfill", zap.Error(err))
		return nil
	}
	return idx
}
