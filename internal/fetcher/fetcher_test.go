package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "market-cli")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RatePerDomain: 100})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RatePerDomain: 100, MaxRetries: 3})
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_NoRetryOn404(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{RatePerDomain: 100, MaxRetries: 3})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcher_SharedLimiterPerHost(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{RatePerDomain: 1})
	l1 := f.limiterFor(hostOf("https://ura.gov.sg/a"))
	l2 := f.limiterFor(hostOf("https://ura.gov.sg/b"))
	l3 := f.limiterFor(hostOf("https://99.co/c"))

	assert.Same(t, l1, l2)
	assert.NotSame(t, l1, l3)
}

func TestCachedFetcher(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("cached-body"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cache.db")
	cf, err := NewCachedFetcher(NewHTTPFetcher(HTTPOptions{RatePerDomain: 100}), path, time.Hour)
	require.NoError(t, err)
	defer cf.Close()

	ctx := context.Background()
	body, err := cf.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-body"), body)

	// Second fetch served from cache.
	body, err = cf.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached-body"), body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedFetcher_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cf, err := NewCachedFetcher(nil, path, time.Hour)
	require.NoError(t, err)
	defer cf.Close()

	n, err := cf.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadCSV(t *testing.T) {
	in := "tender_ref,site_name,awarded_price_sgd\nGLS-2026-01, Lentor Gardens ,672000000\nGLS-2026-02,Media Circle,\n"
	header, rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"tender_ref", "site_name", "awarded_price_sgd"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "Lentor Gardens", rows[0][1])
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header")
}

func TestRecordsFromTable(t *testing.T) {
	header := []string{"tender_ref", "awarded_price_sgd", "postal", ""}
	rows := [][]string{
		{"GLS-2026-01", "672,000,000", "018956", "junk"},
		{"GLS-2026-02", ""},
	}

	recs := RecordsFromTable(header, rows)
	require.Len(t, recs, 2)

	assert.Equal(t, "GLS-2026-01", recs[0]["tender_ref"])
	assert.Equal(t, float64(672000000), recs[0]["awarded_price_sgd"])
	// Leading-zero codes stay strings.
	assert.Equal(t, "018956", recs[0]["postal"])
	// Empty column names and empty cells are dropped.
	assert.Len(t, recs[0], 3)
	assert.Equal(t, map[string]any{"tender_ref": "GLS-2026-02"}, recs[1])
}

func TestParseFTPURL(t *testing.T) {
	host, path, err := parseFTPURL("ftp://data.gov.sg/gls/tenders.csv")
	require.NoError(t, err)
	assert.Equal(t, "data.gov.sg:21", host)
	assert.Equal(t, "/gls/tenders.csv", path)

	_, _, err = parseFTPURL("https://example.com/x")
	require.Error(t, err)
}
