// Package scrape defines the scraper abstraction, the ingestion-run
// lifecycle, and the driver engine that stages extracted entities for the
// promotion engine.
package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/propsight/market-cli/internal/trust"
)

// ParseStatus records how a page extraction went.
type ParseStatus string

const (
	ParseSuccess        ParseStatus = "success"
	ParsePartial        ParseStatus = "partial"
	ParseFailed         ParseStatus = "failed"
	ParseSchemaMismatch ParseStatus = "schema_mismatch"
)

// SourceType records what kind of ingestion produced a run.
type SourceType string

const (
	SourceScrape    SourceType = "scrape"
	SourceCSVUpload SourceType = "csv_upload"
	SourceAPI       SourceType = "api"
	SourceManual    SourceType = "manual"
)

// RunStatus is the ingestion-run lifecycle state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Result is one entity extracted from one page.
type Result struct {
	EntityType  string         `json:"entity_type"`
	EntityKey   string         `json:"entity_key"`
	Extracted   map[string]any `json:"extracted"`
	SourceURL   string         `json:"source_url"`
	ParseStatus ParseStatus    `json:"parse_status"`
	ParseErrors []string       `json:"parse_errors,omitempty"`
}

// Config is the per-run scraper configuration, snapshotted onto the run
// record for reproducibility.
type Config struct {
	Limit  int            `json:"limit,omitempty"`
	Year   int            `json:"year,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Scraper is the per-site ingestion adapter contract. Concrete page parsers
// live outside this package and are injected through the Registry.
type Scraper interface {
	// Name returns the unique scraper identifier (e.g., "ura_projects").
	Name() string

	// Domain returns the source domain the scraper pulls from; the trust
	// table classifies it into a tier.
	Domain() string

	// EntityType returns the entity type the scraper produces.
	EntityType() string

	// URLs returns the finite list of source URLs to fetch for this run.
	URLs(ctx context.Context, cfg Config) ([]string, error)

	// Parse extracts entities from one fetched page.
	Parse(url string, body []byte) ([]Result, error)
}

// Registry maps scraper names to their implementations, preserving
// registration order for deterministic iteration.
type Registry struct {
	scrapers map[string]Scraper
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scrapers: make(map[string]Scraper)}
}

// Register adds a scraper to the registry.
func (r *Registry) Register(s Scraper) {
	name := s.Name()
	if _, exists := r.scrapers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.scrapers[name] = s
}

// Get returns a scraper by name.
func (r *Registry) Get(name string) (Scraper, error) {
	s, ok := r.scrapers[name]
	if !ok {
		return nil, eris.Errorf("scrape: unknown scraper %q", name)
	}
	return s, nil
}

// All returns all scrapers in registration order.
func (r *Registry) All() []Scraper {
	out := make([]Scraper, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.scrapers[name])
	}
	return out
}

// AllNames returns all registered scraper names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Run is one ingestion-run record.
type Run struct {
	ID             string         `json:"id"`
	Scraper        string         `json:"scraper"`
	SourceDomain   string         `json:"source_domain"`
	SourceTier     trust.Tier     `json:"source_tier"`
	SourceType     SourceType     `json:"source_type"`
	Status         RunStatus      `json:"status"`
	Config         map[string]any `json:"config,omitempty"`
	PagesFetched   int            `json:"pages_fetched"`
	ItemsExtracted int            `json:"items_extracted"`
	ItemsPromoted  int            `json:"items_promoted"`
	Errors         int            `json:"errors"`
	Error          string         `json:"error,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(*r.StartedAt)
	}
	return time.Since(*r.StartedAt)
}

// Staged is one source's raw extraction for one entity: the staging row the
// promotion engine consumes. A later scrape from the same source overwrites
// the prior extraction for the same (entityType, entityKey, sourceDomain).
type Staged struct {
	ID           int64          `json:"id"`
	EntityType   string         `json:"entity_type"`
	EntityKey    string         `json:"entity_key"`
	SourceDomain string         `json:"source_domain"`
	SourceTier   trust.Tier     `json:"source_tier"`
	SourceURL    string         `json:"source_url"`
	RunID        string         `json:"run_id"`
	Fields       map[string]any `json:"fields"`
	ContentHash  string         `json:"content_hash"`
	ParseStatus  ParseStatus    `json:"parse_status"`
	ParseErrors  []string       `json:"parse_errors,omitempty"`
	ScrapedAt    time.Time      `json:"scraped_at"`
}
