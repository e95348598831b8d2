package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db/models"
	"github.com/meridian-network/carbonx/pkg/grafana"
	"github.com/meridian-network/carbonx/pkg/metrics"
	"github.com/meridian-network/carbonx/pkg/owid"
)

type fakeTelemetry struct {
	typeRows, historyRows, countryRows []grafana.Row
	typeErr, historyErr, countryErr    error
}

func (f *fakeTelemetry) NodeTypeDistribution(context.Context) ([]grafana.Row, error) {
	return f.typeRows, f.typeErr
}

func (f *fakeTelemetry) NodeCountHistory(context.Context) ([]grafana.Row, error) {
	return f.historyRows, f.historyErr
}

func (f *fakeTelemetry) CountryDistribution(context.Context) ([]grafana.Row, error) {
	return f.countryRows, f.countryErr
}

type fakeCarbon struct {
	ds  *owid.Dataset
	err error
}

func (f *fakeCarbon) CarbonIntensity(context.Context) (*owid.Dataset, error) {
	return f.ds, f.err
}

type fakeStore struct {
	snapshots map[string][]byte
	nodeStats int
	countries int
	power     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: map[string][]byte{}}
}

func (f *fakeStore) SaveSnapshot(_ context.Context, dataset string, _ time.Time, payload []byte) error {
	f.snapshots[dataset] = payload
	return nil
}

func (f *fakeStore) RecordNodeStats(context.Context, time.Time, metrics.NodeData) error {
	f.nodeStats++
	return nil
}

func (f *fakeStore) RecordCountryMetrics(_ context.Context, _ time.Time, merged []metrics.MergedCountry) error {
	f.countries = len(merged)
	return nil
}

func (f *fakeStore) RecordNetworkPower(context.Context, time.Time, metrics.NetworkPowerResults) error {
	f.power++
	return nil
}

type fakePublisher struct {
	published []string
	streamed  []string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ interface{}) {
	f.published = append(f.published, channel)
}

func (f *fakePublisher) XAdd(_ context.Context, stream string, _ map[string]interface{}) string {
	f.streamed = append(f.streamed, stream)
	return "0-1"
}

func testDataset() *owid.Dataset {
	return &owid.Dataset{
		Data: owid.DataDocument{
			Values:   []float64{450, 300},
			Years:    []int{2023, 2023},
			Entities: []int{1, 2},
		},
		Entities: map[int]owid.Entity{
			1: {ID: 1, Name: "United States", Code: "USA"},
			2: {ID: 2, Name: "Germany", Code: "DEU"},
		},
	}
}

func newTestFetcher(tel TelemetrySource, carbon CarbonSource, store SnapshotStore, pub Publisher) *Fetcher {
	f := NewFetcher(zap.NewNop(), tel, carbon, store, pub)
	f.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestRunCycleHappyPath(t *testing.T) {
	tel := &fakeTelemetry{
		typeRows: []grafana.Row{{
			metrics.FieldValidators: 10.0,
			metrics.FieldRelays:     5.0,
			metrics.FieldArchivers:  2.0,
			metrics.FieldAPINodes:   3.0,
		}},
		historyRows: []grafana.Row{{metrics.FieldTime: "2025-05-30T00:00:00Z", metrics.FieldNodeCount: 18.0}},
		countryRows: []grafana.Row{
			{metrics.FieldCountry: "US", metrics.FieldNodeCount: 12.0},
			{metrics.FieldCountry: "DE", metrics.FieldNodeCount: 8.0},
		},
	}
	store := newFakeStore()
	pub := &fakePublisher{}
	f := newTestFetcher(tel, &fakeCarbon{ds: testDataset()}, store, pub)

	require.NoError(t, f.RunCycle(context.Background()))

	for _, ds := range models.KnownDatasets {
		require.Contains(t, store.snapshots, ds, "dataset %s missing", ds)
	}

	var node metrics.NodeData
	require.NoError(t, json.Unmarshal(store.snapshots[models.DatasetNodes], &node))
	require.Equal(t, 20, node.TotalNodes)
	require.Len(t, node.HistoricalData, 1)

	require.Equal(t, 1, store.nodeStats)
	require.Equal(t, 2, store.countries)
	require.Equal(t, 1, store.power)
	require.Len(t, pub.published, len(models.KnownDatasets))
	require.Len(t, pub.streamed, len(models.KnownDatasets))
}

func TestRunCycleMetadataFreshness(t *testing.T) {
	tel := &fakeTelemetry{countryErr: errors.New("telemetry timeout")}
	store := newFakeStore()
	f := newTestFetcher(tel, &fakeCarbon{ds: testDataset()}, store, &fakePublisher{})

	require.NoError(t, f.RunCycle(context.Background()))

	var meta Metadata
	require.NoError(t, json.Unmarshal(store.snapshots[models.DatasetMetadata], &meta))

	require.False(t, meta.DataFreshness[SourceNodeTypes].IsStale)
	require.False(t, meta.DataFreshness[SourceCarbon].IsStale)
	require.True(t, meta.DataFreshness[SourceGeography].IsStale)
	require.Equal(t, "telemetry timeout", meta.DataFreshness[SourceGeography].Error)
	require.NotEmpty(t, meta.Errors)
	require.NotContains(t, store.snapshots, models.DatasetGeography)
}

func TestRunCycleAllSourcesFail(t *testing.T) {
	boom := errors.New("down")
	tel := &fakeTelemetry{typeErr: boom, historyErr: boom, countryErr: boom}
	store := newFakeStore()
	f := newTestFetcher(tel, &fakeCarbon{err: boom}, store, &fakePublisher{})

	require.Error(t, f.RunCycle(context.Background()))

	// Metadata still reflects the failed cycle; nothing else got written.
	require.Contains(t, store.snapshots, models.DatasetMetadata)
	require.Len(t, store.snapshots, 1)
}

func TestRunCycleStaleCarbonFallback(t *testing.T) {
	tel := &fakeTelemetry{
		typeRows:    []grafana.Row{{metrics.FieldValidators: 4.0}},
		countryRows: []grafana.Row{{metrics.FieldCountry: "US", metrics.FieldNodeCount: 4.0}},
	}
	carbon := &fakeCarbon{ds: testDataset()}
	store := newFakeStore()
	f := newTestFetcher(tel, carbon, store, &fakePublisher{})

	require.NoError(t, f.RunCycle(context.Background()))

	var first []metrics.MergedCountry
	require.NoError(t, json.Unmarshal(store.snapshots[models.DatasetCountries], &first))
	require.NotNil(t, first[0].CarbonIntensity)

	// Second cycle: carbon source goes down, the merge still uses the
	// intensities from the previous cycle.
	carbon.ds, carbon.err = nil, errors.New("upstream 503")
	delete(store.snapshots, models.DatasetCountries)

	require.NoError(t, f.RunCycle(context.Background()))

	var second []metrics.MergedCountry
	require.NoError(t, json.Unmarshal(store.snapshots[models.DatasetCountries], &second))
	require.NotNil(t, second[0].CarbonIntensity)
	require.Equal(t, *first[0].CarbonIntensity, *second[0].CarbonIntensity)
}

func TestRunCycleSerializesConcurrentTriggers(t *testing.T) {
	tel := &fakeTelemetry{
		typeRows:    []grafana.Row{{metrics.FieldValidators: 4.0}},
		countryRows: []grafana.Row{{metrics.FieldCountry: "US", metrics.FieldNodeCount: 4.0}},
	}
	store := newFakeStore()
	pub := &fakePublisher{}
	f := newTestFetcher(tel, &fakeCarbon{ds: testDataset()}, store, pub)

	// Cron ticks, refresh requests and the startup cycle can all fire at
	// once; the fakes are deliberately unsynchronized so overlapping cycles
	// would corrupt their counters (and trip the race detector).
	const (
		triggers = 4
		cycles   = 25
	)
	var wg sync.WaitGroup
	for g := 0; g < triggers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				assert.NoError(t, f.RunCycle(context.Background()))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, triggers*cycles, store.nodeStats)
	require.Len(t, pub.published, triggers*cycles*len(models.KnownDatasets))

	var meta Metadata
	require.NoError(t, json.Unmarshal(store.snapshots[models.DatasetMetadata], &meta))
	require.False(t, meta.DataFreshness[SourceCarbon].IsStale)
	require.False(t, meta.DataFreshness[SourceGeography].IsStale)
}

func TestCarbonInputs(t *testing.T) {
	samples, entities := carbonInputs(testDataset())
	require.Len(t, samples, 2)
	require.Equal(t, metrics.IntensitySample{EntityID: 1, Year: 2023, Value: 450}, samples[0])
	require.Equal(t, "USA", entities[1].Code)

	samples, entities = carbonInputs(nil)
	require.Nil(t, samples)
	require.Nil(t, entities)
}
