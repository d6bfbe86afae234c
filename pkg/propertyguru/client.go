// Package propertyguru wraps the PropertyGuru consumer search API as a
// project scraper and a cross-source verification adapter.
package propertyguru

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const (
	// Domain is the source domain for trust-tier classification.
	Domain = "propertyguru.com.sg"

	defaultBaseURL = "https://www.propertyguru.com.sg/api/consumer/search"
)

// Project is one project as the search API reports it.
type Project struct {
	Name       string  `json:"name"`
	Slug       string  `json:"slug"`
	Developer  string  `json:"developer"`
	District   string  `json:"districtCode"`
	TotalUnits int     `json:"totalUnits"`
	UnitsSold  int     `json:"unitsSold"`
	TopDate    string  `json:"expectedTop"`
	Tenure     string  `json:"tenure"`
	MedianPSF  float64 `json:"medianPsf"`
	URL        string  `json:"url"`
}

// searchResponse is the search API envelope.
type searchResponse struct {
	Projects []Project `json:"projects"`
	Total    int       `json:"total"`
}

// Client calls the PropertyGuru search API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a PropertyGuru API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search queries the API for projects matching the free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]Project, error) {
	u := fmt.Sprintf("%s?type=project&q=%s", c.baseURL, url.QueryEscape(query))
	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "propertyguru: decode search response")
	}
	return resp.Projects, nil
}

// pageURL builds the listing URL for one page of the new-launch index.
func (c *Client) pageURL(page int) string {
	return fmt.Sprintf("%s?type=project&segment=new-launch&page=%d", c.baseURL, page)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "propertyguru: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "propertyguru: do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("propertyguru: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "propertyguru: read body")
	}
	return body, nil
}

// fields maps a project to the staging field names, skipping what the
// portal did not report.
func (p Project) fields() map[string]any {
	out := map[string]any{"name": p.Name}
	if p.Developer != "" {
		out["developer"] = p.Developer
	}
	if p.District != "" {
		out["district"] = p.District
	}
	if p.Tenure != "" {
		out["tenure"] = p.Tenure
	}
	if p.TopDate != "" {
		out["top_date"] = p.TopDate
	}
	if p.TotalUnits > 0 {
		out["total_units"] = float64(p.TotalUnits)
	}
	if p.UnitsSold > 0 {
		out["units_sold"] = float64(p.UnitsSold)
	}
	if p.MedianPSF > 0 {
		out["launch_psf"] = p.MedianPSF
	}
	return out
}
