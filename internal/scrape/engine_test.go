package scrape

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/market-cli/internal/trust"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu       sync.Mutex
	runs     map[string]*Run
	staged   map[string]*Staged
	nextID   int
	failUpse bool
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*Run), staged: make(map[string]*Staged)}
}

func stagedKey(entityType, entityKey, domain string) string {
	return entityType + "|" + entityKey + "|" + domain
}

func (m *memStore) CreateRun(_ context.Context, run *Run) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := "run-" + strconv.Itoa(m.nextID)
	cp := *run
	cp.ID = id
	cp.Status = RunPending
	m.runs[id] = &cp
	return id, nil
}

func (m *memStore) StartRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].Status = RunRunning
	return nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string, c Counters) error {
	return m.finish(runID, RunCompleted, c, "")
}

func (m *memStore) FailRun(_ context.Context, runID string, c Counters, errMsg string) error {
	return m.finish(runID, RunFailed, c, errMsg)
}

func (m *memStore) CancelRun(_ context.Context, runID string, c Counters) error {
	return m.finish(runID, RunCancelled, c, "")
}

func (m *memStore) finish(runID string, status RunStatus, c Counters, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[runID]
	r.Status = status
	r.PagesFetched = c.PagesFetched
	r.ItemsExtracted = c.ItemsExtracted
	r.Errors = c.Errors
	r.Error = errMsg
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID], nil
}

func (m *memStore) ListRuns(context.Context, RunFilter) ([]Run, error) { return nil, nil }

func (m *memStore) AddPromoted(_ context.Context, runID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID].ItemsPromoted += n
	return nil
}

func (m *memStore) UpsertStaged(_ context.Context, s *Staged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpse {
		return eris.New("boom")
	}
	cp := *s
	m.staged[stagedKey(s.EntityType, s.EntityKey, s.SourceDomain)] = &cp
	return nil
}

func (m *memStore) GetStaged(_ context.Context, entityType, entityKey, domain string) (*Staged, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staged[stagedKey(entityType, entityKey, domain)], nil
}

func (m *memStore) ListStagedByRun(_ context.Context, runID string) ([]Staged, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Staged
	for _, s := range m.staged {
		if s.RunID == runID {
			out = append(out, *s)
		}
	}
	return out, nil
}

// memFetcher serves canned bodies and errors.
type memFetcher struct {
	bodies map[string][]byte
	errs   map[string]error
}

func (f *memFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.bodies[url], nil
}

// stubScraper emits one project per URL.
type stubScraper struct {
	name    string
	domain  string
	urls    []string
	urlsErr error
}

func (s *stubScraper) Name() string       { return s.name }
func (s *stubScraper) Domain() string     { return s.domain }
func (s *stubScraper) EntityType() string { return "project" }

func (s *stubScraper) URLs(context.Context, Config) ([]string, error) {
	return s.urls, s.urlsErr
}

func (s *stubScraper) Parse(url string, body []byte) ([]Result, error) {
	if string(body) == "unparseable" {
		return nil, eris.New("bad html")
	}
	return []Result{{
		EntityType: "project",
		EntityKey:  "key-" + url,
		Extracted:  map[string]any{"district": "D09", "src": url},
		SourceURL:  url,
	}}, nil
}

func TestEngineRun_Success(t *testing.T) {
	store := newMemStore()
	f := &memFetcher{bodies: map[string][]byte{"u1": []byte("a"), "u2": []byte("b")}}
	s := &stubScraper{name: "ura_projects", domain: "ura.gov.sg", urls: []string{"u1", "u2"}}

	eng := NewEngine(store, f, trust.DefaultTable(), 2)
	run, err := eng.Run(context.Background(), s, Config{})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 2, run.PagesFetched)
	assert.Equal(t, 2, run.ItemsExtracted)
	assert.Zero(t, run.Errors)
	assert.Equal(t, trust.TierA, run.SourceTier)

	staged, err := store.ListStagedByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, staged, 2)
	for _, st := range staged {
		assert.Equal(t, trust.TierA, st.SourceTier)
		assert.Len(t, st.ContentHash, 64)
		assert.Equal(t, ParseSuccess, st.ParseStatus)
	}
}

func TestEngineRun_PerURLErrorContinues(t *testing.T) {
	store := newMemStore()
	f := &memFetcher{
		bodies: map[string][]byte{"good": []byte("a"), "bad-parse": []byte("unparseable")},
		errs:   map[string]error{"bad-fetch": eris.New("connection refused")},
	}
	s := &stubScraper{name: "portal", domain: "99.co", urls: []string{"good", "bad-fetch", "bad-parse"}}

	eng := NewEngine(store, f, trust.DefaultTable(), 1)
	run, err := eng.Run(context.Background(), s, Config{})
	require.NoError(t, err)

	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 2, run.Errors)
	assert.Equal(t, 1, run.ItemsExtracted)

	staged, _ := store.ListStagedByRun(context.Background(), run.ID)
	assert.Len(t, staged, 1)
}

func TestEngineRun_TopLevelFailure(t *testing.T) {
	store := newMemStore()
	s := &stubScraper{name: "broken", domain: "ura.gov.sg", urlsErr: eris.New("listing endpoint gone")}

	eng := NewEngine(store, &memFetcher{}, trust.DefaultTable(), 1)
	run, err := eng.Run(context.Background(), s, Config{})
	require.Error(t, err)

	assert.Equal(t, RunFailed, run.Status)
	stored, _ := store.GetRun(context.Background(), run.ID)
	assert.Equal(t, RunFailed, stored.Status)
	assert.Contains(t, stored.Error, "listing endpoint gone")
}

func TestEngineRun_Cancelled(t *testing.T) {
	store := newMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &stubScraper{name: "slow", domain: "ura.gov.sg", urls: []string{"u1", "u2"}}
	eng := NewEngine(store, &memFetcher{bodies: map[string][]byte{"u1": []byte("a"), "u2": []byte("b")}}, trust.DefaultTable(), 1)

	run, err := eng.Run(ctx, s, Config{})
	require.Error(t, err)
	assert.Equal(t, RunCancelled, run.Status)
}

func TestEngineRun_LimitApplied(t *testing.T) {
	store := newMemStore()
	f := &memFetcher{bodies: map[string][]byte{"u1": []byte("a"), "u2": []byte("b"), "u3": []byte("c")}}
	s := &stubScraper{name: "portal", domain: "99.co", urls: []string{"u1", "u2", "u3"}}

	eng := NewEngine(store, f, trust.DefaultTable(), 2)
	run, err := eng.Run(context.Background(), s, Config{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, run.PagesFetched)
}

func TestEngineRun_UnknownDomainIsTierC(t *testing.T) {
	store := newMemStore()
	f := &memFetcher{bodies: map[string][]byte{"u1": []byte("a")}}
	s := &stubScraper{name: "blog", domain: "random-blog.example", urls: []string{"u1"}}

	eng := NewEngine(store, f, trust.DefaultTable(), 1)
	run, err := eng.Run(context.Background(), s, Config{})
	require.NoError(t, err)
	assert.Equal(t, trust.TierC, run.SourceTier)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	a := &stubScraper{name: "a", domain: "ura.gov.sg"}
	b := &stubScraper{name: "b", domain: "99.co"}
	reg.Register(a)
	reg.Register(b)
	reg.Register(a) // re-register keeps order stable

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	_, err = reg.Get("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scraper")

	assert.Equal(t, []string{"a", "b"}, reg.AllNames())
	assert.Len(t, reg.All(), 2)
}

func TestRunDuration(t *testing.T) {
	var r Run
	assert.Zero(t, r.Duration())
}
