package propertyguru

import (
	"context"

	"github.com/propsight/market-cli/internal/verify"
)

// portalConfidence is the self-reported confidence for listing-portal data.
// Portals aggregate developer feeds but lag official records.
const portalConfidence = 0.85

// Adapter exposes the search API as a verification source.
type Adapter struct {
	client *Client
}

// NewAdapter creates the PropertyGuru verification adapter.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Name implements verify.Adapter.
func (a *Adapter) Name() string { return "propertyguru" }

// Domain implements verify.Adapter.
func (a *Adapter) Domain() string { return Domain }

// VerifyProject implements verify.Adapter. The best fuzzy name match among
// the search hits is returned; the verifier applies the match-score floor.
func (a *Adapter) VerifyProject(ctx context.Context, projectName string) verify.Result {
	projects, err := a.client.Search(ctx, projectName)
	if err != nil {
		return verify.Failed(err.Error())
	}
	if len(projects) == 0 {
		return verify.NotFound()
	}

	best := projects[0]
	bestScore := verify.Similarity(projectName, best.Name)
	for _, p := range projects[1:] {
		if score := verify.Similarity(projectName, p.Name); score > bestScore {
			best, bestScore = p, score
		}
	}
	return verify.Found(best.fields(), portalConfidence, bestScore, best.URL)
}

// SearchProject implements verify.Adapter.
func (a *Adapter) SearchProject(ctx context.Context, query string) ([]string, error) {
	projects, err := a.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(projects))
	for _, p := range projects {
		names = append(names, p.Name)
	}
	return names, nil
}

var _ verify.Adapter = (*Adapter)(nil)
