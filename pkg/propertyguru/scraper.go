package propertyguru

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/scrape"
)

const projectPageSize = 20

// ProjectScraper pages through the new-launch project index.
type ProjectScraper struct {
	client *Client
}

// NewProjectScraper creates the PropertyGuru project scraper.
func NewProjectScraper(client *Client) *ProjectScraper {
	return &ProjectScraper{client: client}
}

// Name implements scrape.Scraper.
func (s *ProjectScraper) Name() string { return "propertyguru_projects" }

// Domain implements scrape.Scraper.
func (s *ProjectScraper) Domain() string { return Domain }

// EntityType implements scrape.Scraper.
func (s *ProjectScraper) EntityType() string { return "project" }

// URLs implements scrape.Scraper. The limit config bounds how many index
// pages a run walks; the default is one page.
func (s *ProjectScraper) URLs(_ context.Context, cfg scrape.Config) ([]string, error) {
	pages := 1
	if cfg.Limit > 0 {
		pages = (cfg.Limit + projectPageSize - 1) / projectPageSize
	}
	urls := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		urls = append(urls, s.client.pageURL(i))
	}
	return urls, nil
}

// Parse implements scrape.Scraper.
func (s *ProjectScraper) Parse(url string, body []byte) ([]scrape.Result, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "propertyguru: decode project page")
	}

	results := make([]scrape.Result, 0, len(resp.Projects))
	for _, p := range resp.Projects {
		res := scrape.Result{
			EntityType:  "project",
			EntityKey:   projectKey(p),
			SourceURL:   url,
			ParseStatus: scrape.ParseSuccess,
		}
		if res.EntityKey == "" {
			res.ParseStatus = scrape.ParseFailed
			res.ParseErrors = []string{"project without name or slug"}
			results = append(results, res)
			continue
		}
		res.Extracted = p.fields()
		results = append(results, res)
	}
	return results, nil
}

// projectKey prefers the portal slug, falling back to a slug built from the
// display name.
func projectKey(p Project) string {
	if p.Slug != "" {
		return strings.ToLower(p.Slug)
	}
	return strings.Join(strings.Fields(strings.ToLower(p.Name)), "-")
}

var _ scrape.Scraper = (*ProjectScraper)(nil)
