package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/county-atlas/internal/dataset"
	"github.com/sells-group/county-atlas/internal/pack"
	"github.com/sells-group/county-atlas/internal/pipeline"
)

type memFetcher struct {
	packs map[string][]byte
}

func (f *memFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	data, ok := f.packs[url]
	if !ok {
		return nil, eris.Errorf("no pack at %s", url)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

const testCatalog = `
categories:
  income:
    label: Income
    metrics_order: [median_income, land_use]
    metrics:
      median_income:
        label: Median household income
        settings:
          scale: linear
          domain: [0, 100]
      land_use:
        label: Land use
        settings:
          type: categorical
`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	nan := float32(math.NaN())
	income := &pack.File{
		IDs: []string{"a", "b", "c", "d"},
		Numeric: map[string][]float32{
			"median_income": {10, 50, nan, 100},
		},
		Strings: map[string]pack.StringColumn{
			"land_use": {Indexes: []uint32{0, 1, 0, 1}, Dict: []string{"rural", "urban"}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, pack.Encode(&buf, income))

	fetcher := &memFetcher{packs: map[string][]byte{
		"https://packs.test/v1/income.pack.gz": buf.Bytes(),
	}}

	cat, err := dataset.ParseCatalog([]byte(testCatalog))
	require.NoError(t, err)

	engine := pipeline.New(cat, pack.NewLoader(fetcher, "https://packs.test/v1"), 5)
	ts := httptest.NewServer(New(engine, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) *http.Response {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string, out any) *http.Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createLayer(t *testing.T, ts *httptest.Server, body string) layerResponse {
	t.Helper()
	var lr layerResponse
	resp := postJSON(t, ts, "/api/layers", body, &lr)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, lr.ID)
	return lr
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	resp := getJSON(t, ts, "/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t)

	var body struct {
		Categories []categoryInfo `json:"categories"`
	}
	resp := getJSON(t, ts, "/api/categories", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, body.Categories, 1)
	cat := body.Categories[0]
	assert.Equal(t, "income", cat.ID)
	assert.Equal(t, "Income", cat.Label)
	require.Len(t, cat.Metrics, 2)
	// Declared ordering is preserved.
	assert.Equal(t, "median_income", cat.Metrics[0].ID)
	assert.Equal(t, "land_use", cat.Metrics[1].ID)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)

	var sum struct {
		Kind  string  `json:"kind"`
		Min   float64 `json:"min"`
		Max   float64 `json:"max"`
		Count int     `json:"count"`
	}
	resp := getJSON(t, ts, "/api/categories/income/metrics/median_income/stats", &sum)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "numeric", sum.Kind)
	assert.Equal(t, 10.0, sum.Min)
	assert.Equal(t, 100.0, sum.Max)
	assert.Equal(t, 3, sum.Count)
}

func TestStatsUnknownMetric(t *testing.T) {
	ts := newTestServer(t)
	resp := getJSON(t, ts, "/api/categories/income/metrics/nope/stats", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateLayerValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/layers", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts, "/api/layers", `{"category":"income"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts, "/api/layers", `{"category":"income","metric":"nope"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayerLifecycle(t *testing.T) {
	ts := newTestServer(t)

	lr := createLayer(t, ts, `{"category":"income","metric":"median_income"}`)
	assert.Equal(t, "income", lr.Category)
	assert.Equal(t, "median_income", lr.Metric)
	assert.Contains(t, lr.Triggers, "metric=median_income")

	var got layerResponse
	resp := getJSON(t, ts, "/api/layers/"+lr.ID, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, lr.ID, got.ID)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/layers/"+lr.ID, nil)
	require.NoError(t, err)
	del, err := ts.Client().Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp = getJSON(t, ts, "/api/layers/"+lr.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayerColors(t *testing.T) {
	ts := newTestServer(t)
	lr := createLayer(t, ts, `{"category":"income","metric":"median_income"}`)

	var body struct {
		IDs    []string `json:"ids"`
		Colors []string `json:"colors"`
	}
	resp := getJSON(t, ts, "/api/layers/"+lr.ID+"/colors", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"a", "b", "c", "d"}, body.IDs)
	require.Len(t, body.Colors, 4)
	// The NaN row renders the missing gray.
	assert.Equal(t, "#cccccc", body.Colors[2])
}

func TestLayerColorsWithFilter(t *testing.T) {
	ts := newTestServer(t)
	lr := createLayer(t, ts,
		`{"category":"income","metric":"median_income","filter":{"min":20,"max":90}}`)

	var body struct {
		Colors []string `json:"colors"`
	}
	getJSON(t, ts, "/api/layers/"+lr.ID+"/colors", &body)
	require.Len(t, body.Colors, 4)
	// Values outside [20,90] render fully transparent.
	assert.Equal(t, "#00000000", body.Colors[0])
	assert.Equal(t, "#00000000", body.Colors[3])
	assert.NotEqual(t, "#00000000", body.Colors[1])
}

func TestLayerLegend(t *testing.T) {
	ts := newTestServer(t)
	lr := createLayer(t, ts, `{"category":"income","metric":"median_income"}`)

	var legend struct {
		Mode string   `json:"mode"`
		Ramp []string `json:"ramp"`
	}
	resp := getJSON(t, ts, "/api/layers/"+lr.ID+"/legend", &legend)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gradient", legend.Mode)
	assert.NotEmpty(t, legend.Ramp)
}

func TestLayerFilterRange(t *testing.T) {
	ts := newTestServer(t)
	lr := createLayer(t, ts, `{"category":"income","metric":"median_income"}`)

	var f rangeFilterModel
	resp := getJSON(t, ts, "/api/layers/"+lr.ID+"/filter", &f)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "range", f.Kind)
	require.NotNil(t, f.Min)
	require.NotNil(t, f.Max)
	assert.Equal(t, 0.0, *f.Min)
	assert.Equal(t, 100.0, *f.Max)
	assert.Equal(t, 0.0, f.Low)
	assert.Equal(t, 1.0, f.High)
}

func TestLayerFilterCategory(t *testing.T) {
	ts := newTestServer(t)
	lr := createLayer(t, ts, `{"category":"income","metric":"land_use"}`)

	var f categoryFilterModel
	resp := getJSON(t, ts, "/api/layers/"+lr.ID+"/filter", &f)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "category", f.Kind)
	assert.ElementsMatch(t, []string{"rural", "urban"}, f.Values)
}
