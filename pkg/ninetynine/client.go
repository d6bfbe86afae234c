// Package ninetynine wraps the 99.co cluster search API as a verification
// adapter.
package ninetynine

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
	Domain = "99.co"

	defaultBaseURL = "https://www.99.co/api/v1/web/search/clusters"

	portalConfidence = 0.8
)

// cluster is one condo cluster as the API reports it.
type cluster struct {
	Title        string  `json:"title"`
	Developer    string  `json:"developer"`
	District     string  `json:"district"`
	UnitCount    int     `json:"unit_count"`
	Completion   string  `json:"completion_year"`
	AvgPSF       float64 `json:"avg_psf"`
	CanonicalURL string  `json:"canonical_url"`
}

type clusterResponse struct {
	Data struct {
		Clusters []cluster `json:"clusters"`
	} `json:"data"`
}

// Adapter queries 99.co cluster search for verification.
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

// NewAdapter creates a 99.co verification adapter.
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
func (a *Adapter) Name() string { return "99co" }

// Domain implements verify.Adapter.
func (a *Adapter) Domain() string { return Domain }

// VerifyProject implements verify.Adapter.
func (a *Adapter) VerifyProject(ctx context.Context, projectName string) verify.Result {
	clusters, err := a.search(ctx, projectName)
	if err != nil {
		return verify.Failed(err.Error())
	}
	if len(clusters) == 0 {
		return verify.NotFound()
	}

	best := clusters[0]
	bestScore := verify.Similarity(projectName, best.Title)
	for _, c := range clusters[1:] {
		if score := verify.Similarity(projectName, c.Title); score > bestScore {
			best, bestScore = c, score
		}
	}

	data := map[string]any{"name": best.Title}
	if best.Developer != "" {
		data["developer"] = best.Developer
	}
	if best.District != "" {
		data["district"] = best.District
	}
	if best.UnitCount > 0 {
		data["total_units"] = float64(best.UnitCount)
	}
	if best.AvgPSF > 0 {
		data["launch_psf"] = best.AvgPSF
	}
	return verify.Found(data, portalConfidence, bestScore, best.CanonicalURL)
}

// SearchProject implements verify.Adapter.
func (a *Adapter) SearchProject(ctx context.Context, query string) ([]string, error) {
	clusters, err := a.search(ctx, query)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(clusters))
	for _, c := range clusters {
		names = append(names, c.Title)
	}
	return names, nil
}

func (a *Adapter) search(ctx context.Context, query string) ([]cluster, error) {
	u := fmt.Sprintf("%s?query=%s&types=condo", a.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ninetynine: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ninetynine: do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("ninetynine: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ninetynine: read body")
	}
	var parsed clusterResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "ninetynine: decode response")
	}
	return parsed.Data.Clusters, nil
}

var _ verify.Adapter = (*Adapter)(nil)
