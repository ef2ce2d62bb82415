package feeder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Prices(t *testing.T) {
	f := newFeeder(t, newSource(t))
	srv := httptest.NewServer(f.Router())
	defer srv.Close()

	resp, err := http.Get(fmt.Sprintf("%s/prices?base=native&assets=%s&start=%d&period=3600&count=1", srv.URL, usd, t0))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var table [][]PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&table))
	require.Len(t, table, 1)
	require.Len(t, table[0], 1)
	assert.Equal(t, PriceView{Asset: usd, Timestamp: t0, Price: "20000000", Decimal: "2", Type: "price"}, table[0][0])
}

func TestRouter_PricesBadRequest(t *testing.T) {
	f := newFeeder(t, newSource(t))
	srv := httptest.NewServer(f.Router())
	defer srv.Close()

	tests := []struct {
		name  string
		query string
	}{
		{"bad asset", "assets=USD&start=1&period=3600"},
		{"missing start", fmt.Sprintf("assets=%s&period=3600", usd)},
		{"invalid period", fmt.Sprintf("assets=%s&start=%d&period=100", usd, t0)},
		{"no assets", fmt.Sprintf("start=%d&period=3600", t0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/prices?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRouter_LatestAndStatus(t *testing.T) {
	f := newFeeder(t, newSource(t))
	f.History().Set(point(usd, t0, 15_000_000))
	srv := httptest.NewServer(f.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/prices/latest")
	require.NoError(t, err)
	defer resp.Body.Close()
	var latest []PriceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	require.Len(t, latest, 1)
	assert.Equal(t, "1.5", latest[0].Decimal)

	resp2, err := http.Get(srv.URL + "/prices/latest?asset=" + eur.String())
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var status map[string]any
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&status))
	assert.Contains(t, status, "cache")
	assert.Contains(t, status, "fetcher")
}
