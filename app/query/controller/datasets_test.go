package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meridian-network/carbonx/app/query/types"
	"github.com/meridian-network/carbonx/pkg/db"
	"github.com/meridian-network/carbonx/pkg/db/models"
)

type fakeReader struct {
	snapshots      map[string]string
	history        []models.NodeStatsRow
	countryHistory []models.CountryMetricsRow
	powerHistory   []models.NetworkPowerRow
	err            error
}

func (f *fakeReader) LatestSnapshot(_ context.Context, dataset string) (*models.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	payload, ok := f.snapshots[dataset]
	if !ok {
		return nil, db.ErrNoSnapshot
	}
	return &models.Snapshot{Dataset: dataset, FetchedAt: time.Now(), Payload: payload}, nil
}

func (f *fakeReader) NodeStatsHistory(context.Context, time.Duration) ([]models.NodeStatsRow, error) {
	return f.history, f.err
}

func (f *fakeReader) CountryMetricsHistory(context.Context, time.Duration) ([]models.CountryMetricsRow, error) {
	return f.countryHistory, f.err
}

func (f *fakeReader) NetworkPowerHistory(context.Context, time.Duration) ([]models.NetworkPowerRow, error) {
	return f.powerHistory, f.err
}

func (f *fakeReader) Health(context.Context) error { return f.err }

func (f *fakeReader) Close() error { return nil }

func newTestController(t *testing.T, reader *fakeReader) *Controller {
	t.Helper()
	app := &types.App{
		DB:     reader,
		Latest: xsync.NewMap[string, []byte](),
		Logger: zaptest.NewLogger(t),
	}
	return NewController(app)
}

func serve(t *testing.T, c *Controller, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	router, err := c.NewRouter()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleDataset(t *testing.T) {
	ctler := newTestController(t, &fakeReader{snapshots: map[string]string{
		models.DatasetNodes: `{"totalNodes":42}`,
	}})

	rec := serve(t, ctler, http.MethodGet, "/api/datasets/nodes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"totalNodes":42}`, rec.Body.String())
}

func TestHandleDatasetUnknown(t *testing.T) {
	ctler := newTestController(t, &fakeReader{})

	rec := serve(t, ctler, http.MethodGet, "/api/datasets/bogus")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDatasetNoData(t *testing.T) {
	ctler := newTestController(t, &fakeReader{snapshots: map[string]string{}})

	rec := serve(t, ctler, http.MethodGet, "/api/carbon")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no data yet")
}

func TestHandleDatasetAliases(t *testing.T) {
	snapshots := map[string]string{}
	for _, ds := range models.KnownDatasets {
		snapshots[ds] = `{"dataset":"` + ds + `"}`
	}
	ctler := newTestController(t, &fakeReader{snapshots: snapshots})

	for _, path := range []string{"/api/nodes", "/api/carbon", "/api/geography", "/api/countries", "/api/power", "/api/metadata"} {
		rec := serve(t, ctler, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestHandleDatasetServesCache(t *testing.T) {
	reader := &fakeReader{snapshots: map[string]string{
		models.DatasetPower: `{"mainnetPowerKW":40}`,
	}}
	ctler := newTestController(t, reader)

	rec := serve(t, ctler, http.MethodGet, "/api/power")
	require.Equal(t, http.StatusOK, rec.Code)

	// Once cached, the store is no longer consulted.
	reader.snapshots = nil
	rec = serve(t, ctler, http.MethodGet, "/api/power")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mainnetPowerKW":40}`, rec.Body.String())

	// Invalidation falls back to the store again.
	ctler.App.InvalidateFromEvent(`{"dataset":"power"}`)
	rec = serve(t, ctler, http.MethodGet, "/api/power")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNodeHistory(t *testing.T) {
	ctler := newTestController(t, &fakeReader{history: []models.NodeStatsRow{
		{TotalNodes: 100, Validators: 3},
		{TotalNodes: 104, Validators: 4},
	}})

	rec := serve(t, ctler, http.MethodGet, "/api/nodes/history?days=30")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"days":30`)
	assert.Contains(t, rec.Body.String(), `"totalNodes":104`)
}

func TestHandleNodeHistoryBadDays(t *testing.T) {
	ctler := newTestController(t, &fakeReader{})

	rec := serve(t, ctler, http.MethodGet, "/api/nodes/history?days=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, ctler, http.MethodGet, "/api/nodes/history?days=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCountryHistory(t *testing.T) {
	intensity := 450.0
	ctler := newTestController(t, &fakeReader{countryHistory: []models.CountryMetricsRow{
		{CountryCode2: "US", CountryName: "United States", NodeCount: 12, CarbonIntensity: &intensity},
		{CountryCode2: "AQ", CountryName: "Antarctica", NodeCount: 1},
	}})

	rec := serve(t, ctler, http.MethodGet, "/api/countries/history?days=7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"days":7`)
	assert.Contains(t, rec.Body.String(), `"carbonIntensity":450`)
	// Uncovered countries serialize their intensity as null.
	assert.Contains(t, rec.Body.String(), `"carbonIntensity":null`)
}

func TestHandlePowerHistory(t *testing.T) {
	ctler := newTestController(t, &fakeReader{powerHistory: []models.NetworkPowerRow{
		{MainnetPowerKW: 40, MainnetEnergyKWh: 350640},
	}})

	rec := serve(t, ctler, http.MethodGet, "/api/power/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mainnetPowerKW":40`)
	assert.Contains(t, rec.Body.String(), `"mainnetEnergyKWh":350640`)
}

func TestHandleHistoryEndpointsEmpty(t *testing.T) {
	ctler := newTestController(t, &fakeReader{})

	for _, path := range []string{"/api/countries/history", "/api/power/history"} {
		rec := serve(t, ctler, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
		assert.Contains(t, rec.Body.String(), `"history":[]`, "path %s", path)
	}

	rec := serve(t, ctler, http.MethodGet, "/api/power/history?days=never")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleNodeHistoryEmpty(t *testing.T) {
	ctler := newTestController(t, &fakeReader{})

	rec := serve(t, ctler, http.MethodGet, "/api/nodes/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"history":[]`)
}
