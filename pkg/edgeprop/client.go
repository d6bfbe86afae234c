// Package edgeprop wraps the EdgeProp analytics API as a verification
// adapter.
package edgeprop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/verify"
)

const (
	// Domain is the source domain for trust-tier classification.
	Domain = "edgeprop.sg"

	defaultBaseURL = "https://www.edgeprop.sg/api/analytics/project"

	// EdgeProp sources unit counts from caveat records, which track the
	// official registries closely.
	analyticsConfidence = 0.9
)

// projectRecord is one project as the analytics API reports it.
type projectRecord struct {
	ProjectName   string  `json:"project_name"`
	DeveloperName string  `json:"developer_name"`
	District      string  `json:"postal_district"`
	TotalUnits    float64 `json:"total_units"`
	SoldToDate    float64 `json:"sold_to_date"`
	MedianPSF     float64 `json:"median_psf"`
	ProfileURL    string  `json:"profile_url"`
}

type analyticsResponse struct {
	Results []projectRecord `json:"results"`
}

// Adapter queries EdgeProp project analytics for verification.
type Adapter struct {
	baseURL string
	http    *http.Client
}

// Option configures the adapter.
type Option func(*Adapter)

// WithBaseURL sets a custom API URL (for testing).
func WithBaseURL(url string) Option {
	return func(a *Adapter) { a.baseURL = url }
}

// NewAdapter creates an EdgeProp verification adapter.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements verify.Adapter.
func (a *Adapter) Name() string { return "edgeprop" }

// Domain implements verify.Adapter.
func (a *Adapter) Domain() string { return Domain }

// VerifyProject implements verify.Adapter.
func (a *Adapter) VerifyProject(ctx context.Context, projectName string) verify.Result {
	records, err := a.query(ctx, projectName)
	if err != nil {
		return verify.Failed(err.Error())
	}
	if len(records) == 0 {
		return verify.NotFound()
	}

	best := records[0]
	bestScore := verify.Similarity(projectName, best.ProjectName)
	for _, r := range records[1:] {
		if score := verify.Similarity(projectName, r.ProjectName); score > bestScore {
			best, bestScore = r, score
		}
	}

	data := map[string]any{"name": best.ProjectName}
	if best.DeveloperName != "" {
		data["developer"] = best.DeveloperName
	}
	if best.District != "" {
		data["district"] = best.District
	}
	if best.TotalUnits > 0 {
		data["total_units"] = best.TotalUnits
	}
	if best.SoldToDate > 0 {
		data["units_sold"] = best.SoldToDate
	}
	if best.MedianPSF > 0 {
		data["launch_psf"] = best.MedianPSF
	}
	return verify.Found(data, analyticsConfidence, bestScore, best.ProfileURL)
}

// SearchProject implements verify.Adapter.
func (a *Adapter) SearchProject(ctx context.Context, query string) ([]string, error) {
	records, err := a.query(ctx, query)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.ProjectName)
	}
	return names, nil
}

func (a *Adapter) query(ctx context.Context, name string) ([]projectRecord, error) {
	u := fmt.Sprintf("%s?name=%s", a.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgeprop: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "edgeprop: do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("edgeprop: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "edgeprop: read body")
	}
	var parsed analyticsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "edgeprop: decode response")
	}
	return parsed.Results, nil
}

var _ verify.Adapter = (*Adapter)(nil)
