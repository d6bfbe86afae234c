// Package ura ingests Government Land Sales tenders from the URA data
// service.
package ura

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/scrape"
)

const (
	// Domain is the source domain for trust-tier classification.
	Domain = "ura.gov.sg"

	defaultBaseURL = "https://www.ura.gov.sg/uraDataService/invokeUraDS"
)

// glsResponse is the URA data service envelope.
type glsResponse struct {
	Status  string      `json:"Status"`
	Message string      `json:"Message"`
	Result  []glsTender `json:"Result"`
}

// glsTender is one tender record as URA publishes it.
type glsTender struct {
	ReferenceNumber     string `json:"referenceNumber"`
	SiteName            string `json:"siteName"`
	Location            string `json:"location"`
	Region              string `json:"region"`
	SiteAreaSqm         string `json:"siteArea"`
	GrossPlotRatio      string `json:"grossPlotRatio"`
	LaunchDate          string `json:"launchDate"`
	CloseDate           string `json:"closeDate"`
	AwardDate           string `json:"awardDate"`
	SuccessfulTenderer  string `json:"successfulTenderer"`
	AwardedPrice        string `json:"tenderedPrice"`
	NumBids             string `json:"numBids"`
	DevelopmentType     string `json:"devtType"`
	StatusOfDevelopment string `json:"status"`
}

// GLSScraper pulls the full GLS tender list from the URA data service. The
// service returns one JSON document, so a run fetches a single URL.
type GLSScraper struct {
	baseURL string
}

// Option configures the scraper.
type Option func(*GLSScraper)

// WithBaseURL sets a custom data service URL (for testing).
func WithBaseURL(url string) Option {
	return func(s *GLSScraper) { s.baseURL = url }
}

// NewGLSScraper creates the URA GLS tender scraper.
func NewGLSScraper(opts ...Option) *GLSScraper {
	s := &GLSScraper{baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements scrape.Scraper.
func (s *GLSScraper) Name() string { return "ura_gls" }

// Domain implements scrape.Scraper.
func (s *GLSScraper) Domain() string { return Domain }

// EntityType implements scrape.Scraper.
func (s *GLSScraper) EntityType() string { return "gls_tender" }

// URLs implements scrape.Scraper. The year filter narrows the service query
// when set; otherwise the full tender history comes back in one document.
func (s *GLSScraper) URLs(_ context.Context, cfg scrape.Config) ([]string, error) {
	u := s.baseURL + "?service=GLS_Tender"
	if cfg.Year > 0 {
		u += "&year=" + strconv.Itoa(cfg.Year)
	}
	return []string{u}, nil
}

// Parse implements scrape.Scraper.
func (s *GLSScraper) Parse(url string, body []byte) ([]scrape.Result, error) {
	var resp glsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "ura: decode GLS response")
	}
	if !strings.EqualFold(resp.Status, "success") {
		return nil, eris.Errorf("ura: GLS service returned status %q: %s", resp.Status, resp.Message)
	}

	results := make([]scrape.Result, 0, len(resp.Result))
	for _, t := range resp.Result {
		res := scrape.Result{
			EntityType:  "gls_tender",
			EntityKey:   strings.TrimSpace(t.ReferenceNumber),
			SourceURL:   url,
			ParseStatus: scrape.ParseSuccess,
		}
		if res.EntityKey == "" {
			res.ParseStatus = scrape.ParseFailed
			res.ParseErrors = []string{"tender without reference number"}
			results = append(results, res)
			continue
		}

		fields := map[string]any{
			"tender_ref": res.EntityKey,
			"site_name":  strings.TrimSpace(t.SiteName),
			"location":   strings.TrimSpace(t.Location),
		}
		putStr(fields, "region", t.Region)
		putStr(fields, "successful_tenderer", t.SuccessfulTenderer)
		putStr(fields, "status", strings.ToLower(t.StatusOfDevelopment))

		var errs []string
		putNum(fields, "site_area_sqm", t.SiteAreaSqm, &errs)
		putNum(fields, "gross_plot_ratio", t.GrossPlotRatio, &errs)
		putNum(fields, "awarded_price_sgd", t.AwardedPrice, &errs)
		putNum(fields, "num_bids", t.NumBids, &errs)
		putDate(fields, "launch_date", t.LaunchDate, &errs)
		putDate(fields, "close_date", t.CloseDate, &errs)
		putDate(fields, "award_date", t.AwardDate, &errs)

		if len(errs) > 0 {
			res.ParseStatus = scrape.ParsePartial
			res.ParseErrors = errs
		}
		res.Extracted = fields
		results = append(results, res)
	}
	return results, nil
}

func putStr(fields map[string]any, key, raw string) {
	if v := strings.TrimSpace(raw); v != "" {
		fields[key] = v
	}
}

func putNum(fields map[string]any, key, raw string, errs *[]string) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: bad number %q", key, raw))
		return
	}
	fields[key] = v
}

// putDate normalizes URA's dd/mm/yyyy dates to ISO.
func putDate(fields map[string]any, key, raw string, errs *[]string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			fields[key] = t.Format("2006-01-02")
			return
		}
	}
	*errs = append(*errs, fmt.Sprintf("%s: bad date %q", key, raw))
}

var _ scrape.Scraper = (*GLSScraper)(nil)
