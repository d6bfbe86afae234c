// Package datagov ingests HDB resale transactions from the data.gov.sg
// datastore API.
package datagov

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/scrape"
)

const (
	// Domain is the source domain for trust-tier classification.
	Domain = "data.gov.sg"

	defaultBaseURL = "https://data.gov.sg/api/action/datastore_search"

	// resaleResourceID identifies the "Resale flat prices from Jan 2017"
	// dataset.
	resaleResourceID = "d_8b84c4ee58e3cfc0ece0d773c8ca6abc"

	pageSize = 500

	sqmToSqft = 10.7639
)

// searchResponse is the CKAN datastore envelope.
type searchResponse struct {
	Success bool         `json:"success"`
	Result  searchResult `json:"result"`
}

type searchResult struct {
	Records []resaleRecord `json:"records"`
	Total   int            `json:"total"`
}

// resaleRecord is one resale transaction row.
type resaleRecord struct {
	Month             string `json:"month"`
	Town              string `json:"town"`
	FlatType          string `json:"flat_type"`
	Block             string `json:"block"`
	StreetName        string `json:"street_name"`
	StoreyRange       string `json:"storey_range"`
	FloorAreaSqm      string `json:"floor_area_sqm"`
	FlatModel         string `json:"flat_model"`
	LeaseCommenceDate string `json:"lease_commence_date"`
	ResalePrice       string `json:"resale_price"`
}

// ResaleScraper pages through the HDB resale dataset. The dataset is large,
// so the limit config caps how many pages a run fetches.
type ResaleScraper struct {
	baseURL string
}

// Option configures the scraper.
type Option func(*ResaleScraper)

// WithBaseURL sets a custom API URL (for testing).
func WithBaseURL(url string) Option {
	return func(s *ResaleScraper) { s.baseURL = url }
}

// NewResaleScraper creates the HDB resale transaction scraper.
func NewResaleScraper(opts ...Option) *ResaleScraper {
	s := &ResaleScraper{baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements scrape.Scraper.
func (s *ResaleScraper) Name() string { return "hdb_resale" }

// Domain implements scrape.Scraper.
func (s *ResaleScraper) Domain() string { return Domain }

// EntityType implements scrape.Scraper.
func (s *ResaleScraper) EntityType() string { return "transaction" }

// URLs implements scrape.Scraper. Each URL is one datastore page; the limit
// config bounds the page count and defaults to a single page.
func (s *ResaleScraper) URLs(_ context.Context, cfg scrape.Config) ([]string, error) {
	pages := 1
	if cfg.Limit > 0 {
		pages = (cfg.Limit + pageSize - 1) / pageSize
	}
	urls := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		urls = append(urls, fmt.Sprintf("%s?resource_id=%s&limit=%d&offset=%d",
			s.baseURL, resaleResourceID, pageSize, i*pageSize))
	}
	return urls, nil
}

// Parse implements scrape.Scraper.
func (s *ResaleScraper) Parse(url string, body []byte) ([]scrape.Result, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "datagov: decode datastore response")
	}
	if !resp.Success {
		return nil, eris.New("datagov: datastore query unsuccessful")
	}

	results := make([]scrape.Result, 0, len(resp.Result.Records))
	for _, rec := range resp.Result.Records {
		res := scrape.Result{
			EntityType:  "transaction",
			EntityKey:   transactionKey(rec),
			SourceURL:   url,
			ParseStatus: scrape.ParseSuccess,
		}

		fields := map[string]any{
			"sale_month": rec.Month,
			"town":       rec.Town,
			"flat_type":  rec.FlatType,
			"block":      rec.Block,
			"street":     rec.StreetName,
			"storey":     rec.StoreyRange,
			"flat_model": rec.FlatModel,
		}

		var errs []string
		area := parseNum(rec.FloorAreaSqm, "floor_area_sqm", &errs)
		price := parseNum(rec.ResalePrice, "price_sgd", &errs)
		if area > 0 {
			fields["floor_area_sqm"] = area
		}
		if price > 0 {
			fields["price_sgd"] = price
		}
		if area > 0 && price > 0 {
			fields["psf"] = round2(price / (area * sqmToSqft))
		}
		if y, err := strconv.Atoi(rec.LeaseCommenceDate); err == nil && y > 0 {
			fields["lease_commence_year"] = float64(y)
		}

		if len(errs) > 0 {
			res.ParseStatus = scrape.ParsePartial
			res.ParseErrors = errs
		}
		res.Extracted = fields
		results = append(results, res)
	}
	return results, nil
}

// transactionKey builds a stable key from the fields HDB publishes. The
// dataset has no row identifier, so the key is the full physical identity
// of the sale.
func transactionKey(r resaleRecord) string {
	parts := []string{"hdb", r.Month, r.Block, r.StreetName, r.FlatType, r.StoreyRange, r.FloorAreaSqm}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.Join(strings.Fields(p), "-"))
	}
	return strings.Join(parts, "|")
}

func parseNum(raw, key string, errs *[]string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*errs = append(*errs, key+": missing")
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: bad number %q", key, raw))
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

var _ scrape.Scraper = (*ResaleScraper)(nil)
