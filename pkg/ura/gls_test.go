package ura

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/market-cli/internal/scrape"
)

const glsBody = `{
	"Status": "Success",
	"Result": [
		{
			"referenceNumber": "GLS-2024-03",
			"siteName": "Lentor Gardens",
			"location": "Lentor Gardens",
			"region": "North",
			"siteArea": "21,866.7",
			"grossPlotRatio": "3.0",
			"launchDate": "15/06/2023",
			"closeDate": "14/09/2023",
			"awardDate": "26/09/2023",
			"successfulTenderer": "GuocoLand",
			"tenderedPrice": "486800000",
			"numBids": "3",
			"status": "Awarded"
		},
		{
			"referenceNumber": "GLS-2024-07",
			"siteName": "Media Circle",
			"location": "Media Circle",
			"region": "West",
			"siteArea": "10,632",
			"grossPlotRatio": "4.9",
			"launchDate": "29/02/2024",
			"closeDate": "27/06/2024",
			"status": "Launched"
		}
	]
}`

func TestGLSScraper_Parse(t *testing.T) {
	s := NewGLSScraper()

	results, err := s.Parse("https://www.ura.gov.sg/x", []byte(glsBody))
	require.NoError(t, err)
	require.Len(t, results, 2)

	awarded := results[0]
	assert.Equal(t, "gls_tender", awarded.EntityType)
	assert.Equal(t, "GLS-2024-03", awarded.EntityKey)
	assert.Equal(t, scrape.ParseSuccess, awarded.ParseStatus)
	assert.Equal(t, "Lentor Gardens", awarded.Extracted["site_name"])
	assert.Equal(t, 21866.7, awarded.Extracted["site_area_sqm"])
	assert.Equal(t, 3.0, awarded.Extracted["gross_plot_ratio"])
	assert.Equal(t, 486800000.0, awarded.Extracted["awarded_price_sgd"])
	assert.Equal(t, 3.0, awarded.Extracted["num_bids"])
	assert.Equal(t, "2023-09-26", awarded.Extracted["award_date"])
	assert.Equal(t, "awarded", awarded.Extracted["status"])

	open := results[1]
	assert.Equal(t, scrape.ParseSuccess, open.ParseStatus)
	assert.NotContains(t, open.Extracted, "awarded_price_sgd")
	assert.NotContains(t, open.Extracted, "award_date")
	assert.Equal(t, "2024-02-29", open.Extracted["launch_date"])
}

func TestGLSScraper_ParsePartialOnBadNumber(t *testing.T) {
	body := `{"Status":"Success","Result":[
		{"referenceNumber":"GLS-X","siteName":"S","location":"L","siteArea":"n/a"}]}`

	results, err := NewGLSScraper().Parse("u", []byte(body))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scrape.ParsePartial, results[0].ParseStatus)
	assert.Contains(t, results[0].ParseErrors[0], "site_area_sqm")
	assert.NotContains(t, results[0].Extracted, "site_area_sqm")
}

func TestGLSScraper_MissingReference(t *testing.T) {
	body := `{"Status":"Success","Result":[{"siteName":"S"}]}`

	results, err := NewGLSScraper().Parse("u", []byte(body))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scrape.ParseFailed, results[0].ParseStatus)
}

func TestGLSScraper_ServiceError(t *testing.T) {
	body := `{"Status":"Error","Message":"token expired"}`

	_, err := NewGLSScraper().Parse("u", []byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestGLSScraper_URLs(t *testing.T) {
	s := NewGLSScraper(WithBaseURL("https://example.com/ds"))

	urls, err := s.URLs(context.Background(), scrape.Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/ds?service=GLS_Tender"}, urls)

	urls, err = s.URLs(context.Background(), scrape.Config{Year: 2024})
	require.NoError(t, err)
	assert.Contains(t, urls[0], "year=2024")
}
