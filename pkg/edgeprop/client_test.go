package edgeprop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/market-cli/internal/verify"
)

func analyticsServer(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestVerifyProject_PicksBestMatch(t *testing.T) {
	srv := analyticsServer(`{"results":[
		{"project_name":"LENTOR MODERN","total_units":605},
		{"project_name":"LENTORIA","developer_name":"TID","postal_district":"D26",
		 "total_units":267,"sold_to_date":120,"median_psf":2110,
		 "profile_url":"https://www.edgeprop.sg/p/lentoria"}
	]}`)
	defer srv.Close()

	a := NewAdapter(WithBaseURL(srv.URL))
	res := a.VerifyProject(context.Background(), "Lentoria")

	require.Equal(t, verify.ResultFound, res.Kind)
	assert.True(t, res.Usable())
	assert.Equal(t, 267.0, res.Data["total_units"])
	assert.Equal(t, 120.0, res.Data["units_sold"])
	assert.Equal(t, verify.BandMedium, res.Band())
	assert.Equal(t, "https://www.edgeprop.sg/p/lentoria", res.SourceURL)
}

func TestVerifyProject_NotFound(t *testing.T) {
	srv := analyticsServer(`{"results":[]}`)
	defer srv.Close()

	res := NewAdapter(WithBaseURL(srv.URL)).VerifyProject(context.Background(), "x")
	assert.Equal(t, verify.ResultNotFound, res.Kind)
}

func TestVerifyProject_BadJSON(t *testing.T) {
	srv := analyticsServer(`<html>maintenance</html>`)
	defer srv.Close()

	res := NewAdapter(WithBaseURL(srv.URL)).VerifyProject(context.Background(), "x")
	assert.Equal(t, verify.ResultError, res.Kind)
}

func TestSearchProject(t *testing.T) {
	srv := analyticsServer(`{"results":[{"project_name":"LENTORIA"}]}`)
	defer srv.Close()

	names, err := NewAdapter(WithBaseURL(srv.URL)).SearchProject(context.Background(), "lentoria")
	require.NoError(t, err)
	assert.Equal(t, []string{"LENTORIA"}, names)
}
