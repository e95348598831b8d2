package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db/models"
	"github.com/meridian-network/carbonx/pkg/grafana"
	"github.com/meridian-network/carbonx/pkg/metrics"
	"github.com/meridian-network/carbonx/pkg/owid"
	"github.com/meridian-network/carbonx/pkg/redis"
	"github.com/meridian-network/carbonx/pkg/utils"
)

// TelemetrySource is the Grafana-backed telemetry API surface the fetcher
// needs.
type TelemetrySource interface {
	NodeTypeDistribution(ctx context.Context) ([]grafana.Row, error)
	NodeCountHistory(ctx context.Context) ([]grafana.Row, error)
	CountryDistribution(ctx context.Context) ([]grafana.Row, error)
}

// CarbonSource is the statistics API surface the fetcher needs.
type CarbonSource interface {
	CarbonIntensity(ctx context.Context) (*owid.Dataset, error)
}

// SnapshotStore is the persistence surface the fetcher writes to.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, dataset string, fetchedAt time.Time, payload []byte) error
	RecordNodeStats(ctx context.Context, fetchedAt time.Time, node metrics.NodeData) error
	RecordCountryMetrics(ctx context.Context, fetchedAt time.Time, merged []metrics.MergedCountry) error
	RecordNetworkPower(ctx context.Context, fetchedAt time.Time, p metrics.NetworkPowerResults) error
}

// Publisher fans dataset-update events out to the query service.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{})
	XAdd(ctx context.Context, stream string, values map[string]interface{}) string
}

// Fetcher runs one fetch cycle at a time: concurrent all-settle fetches of
// the upstream sources, pure derivation through the metrics pipeline, then
// persistence and event publication. Last-good inputs are kept in memory so
// derived datasets can still be recomputed when a single source fails.
type Fetcher struct {
	Logger    *zap.Logger
	Telemetry TelemetrySource
	Carbon    CarbonSource
	Store     SnapshotStore
	Events    Publisher

	// Now is the wall-clock injection point; derived snapshots are stamped
	// with it once per cycle.
	Now func() time.Time

	pool pond.Pool

	// mu serializes cycles. Cron ticks, refresh requests and the startup
	// cycle all share one Fetcher, and the last-good state below must only
	// ever see complete cycles.
	mu sync.Mutex

	// Last-good state across cycles.
	freshness       map[string]SourceFreshness
	lastNode        *metrics.NodeData
	lastIntensities []metrics.CountryIntensity
	lastDist        []metrics.CountryNodeCount
	version         string
}

// NewFetcher wires a fetcher with its worker pool.
func NewFetcher(logger *zap.Logger, telemetry TelemetrySource, carbon CarbonSource, store SnapshotStore, events Publisher) *Fetcher {
	return &Fetcher{
		Logger:    logger,
		Telemetry: telemetry,
		Carbon:    carbon,
		Store:     store,
		Events:    events,
		Now:       func() time.Time { return time.Now().UTC() },
		pool:      pond.NewPool(4),
		freshness: map[string]SourceFreshness{},
		version:   utils.Env("CARBONX_VERSION", "dev"),
	}
}

// fetchResults carries the raw outcome of one cycle's upstream requests.
type fetchResults struct {
	typeRows, historyRows, countryRows []grafana.Row
	carbonDS                           *owid.Dataset

	typeErr, historyErr, countryErr, carbonErr error
}

// fetchAll runs the four upstream requests concurrently with an all-settle
// policy: every task records its own outcome and a failure in one source
// never blocks the others.
func (f *Fetcher) fetchAll(ctx context.Context) *fetchResults {
	res := &fetchResults{}
	group := f.pool.NewGroupContext(ctx)

	group.Submit(func() {
		res.typeRows, res.typeErr = f.Telemetry.NodeTypeDistribution(ctx)
	})
	group.Submit(func() {
		res.historyRows, res.historyErr = f.Telemetry.NodeCountHistory(ctx)
	})
	group.Submit(func() {
		res.countryRows, res.countryErr = f.Telemetry.CountryDistribution(ctx)
	})
	group.Submit(func() {
		res.carbonDS, res.carbonErr = f.Carbon.CarbonIntensity(ctx)
	})

	_ = group.Wait()
	return res
}

// RunCycle executes one full fetch-derive-persist cycle. Overlapping
// triggers queue behind the running cycle.
func (f *Fetcher) RunCycle(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.Now()
	res := f.fetchAll(ctx)

	var cycleErrors []string

	// Node census and history.
	if res.typeErr == nil {
		counts := metrics.ParseNodeTypes(res.typeRows)
		var history []metrics.HistoricalPoint
		if res.historyErr == nil {
			history = metrics.ParseHistoricalData(res.historyRows)
		}
		node := metrics.BuildNodeData(now, counts, history)

		anomalies := metrics.DetectAnomalies(counts, node.TotalNodes)
		for _, a := range anomalies {
			f.Logger.Warn("node census anomaly", zap.String("anomaly", a))
		}
		cycleErrors = append(cycleErrors, anomalies...)

		f.lastNode = &node
		f.persist(ctx, models.DatasetNodes, now, node)
		if err := f.Store.RecordNodeStats(ctx, now, node); err != nil {
			f.Logger.Error("record node stats", zap.Error(err))
		}
	}
	f.noteSource(SourceNodeTypes, now, res.typeErr, &cycleErrors)
	f.noteSource(SourceTelemetry, now, res.historyErr, &cycleErrors)

	// Carbon intensities.
	if res.carbonErr == nil {
		samples, entities := carbonInputs(res.carbonDS)
		countries := metrics.ResolveIntensities(f.Logger, samples, entities)
		f.lastIntensities = countries
		f.persist(ctx, models.DatasetCarbon, now, metrics.BuildCarbonData(now, countries))
	}
	f.noteSource(SourceCarbon, now, res.carbonErr, &cycleErrors)

	// Geographic distribution.
	if res.countryErr == nil {
		dist := metrics.ParseCountryDistribution(res.countryRows)
		f.lastDist = dist
		f.persist(ctx, models.DatasetGeography, now, metrics.GeographicalData{Countries: dist, Timestamp: now})
	}
	f.noteSource(SourceGeography, now, res.countryErr, &cycleErrors)

	// Derived datasets recompute from the latest known inputs, so a stale
	// source degrades them gracefully instead of wiping them.
	if len(f.lastDist) > 0 {
		merged := metrics.MergeCountryData(f.lastDist, f.lastIntensities)
		f.persist(ctx, models.DatasetCountries, now, merged)
		if err := f.Store.RecordCountryMetrics(ctx, now, merged); err != nil {
			f.Logger.Error("record country metrics", zap.Error(err))
		}

		if f.lastNode != nil {
			power := metrics.CalculateNetworkPower(*f.lastNode, merged)
			f.persist(ctx, models.DatasetPower, now, power)
			if err := f.Store.RecordNetworkPower(ctx, now, power); err != nil {
				f.Logger.Error("record network power", zap.Error(err))
			}
		}
	}

	meta := Metadata{
		LastUpdate:    now,
		DataFreshness: f.freshnessView(),
		Errors:        cycleErrors,
		Version:       f.version,
	}
	f.persist(ctx, models.DatasetMetadata, now, meta)

	if res.typeErr != nil && res.historyErr != nil && res.countryErr != nil && res.carbonErr != nil {
		return fmt.Errorf("all upstream sources failed: %v", cycleErrors)
	}
	return nil
}

// noteSource updates one source's freshness after a cycle and collects its
// error, if any.
func (f *Fetcher) noteSource(source string, now time.Time, err error, cycleErrors *[]string) {
	fresh := f.freshness[source]
	if err == nil {
		ts := now
		fresh.LastSuccessfulFetch = &ts
		fresh.IsStale = false
		fresh.Error = ""
	} else {
		fresh.IsStale = true
		fresh.Error = err.Error()
		*cycleErrors = append(*cycleErrors, fmt.Sprintf("%s: %s", source, err.Error()))
		f.Logger.Warn("upstream source failed, keeping previous snapshot",
			zap.String("source", source),
			zap.Error(err))
	}
	f.freshness[source] = fresh
}

// freshnessView copies the freshness map for the metadata snapshot.
func (f *Fetcher) freshnessView() map[string]SourceFreshness {
	out := make(map[string]SourceFreshness, len(f.freshness))
	for k, v := range f.freshness {
		out[k] = v
	}
	return out
}

// persist writes one dataset snapshot and announces the update.
func (f *Fetcher) persist(ctx context.Context, dataset string, now time.Time, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		f.Logger.Error("marshal dataset", zap.String("dataset", dataset), zap.Error(err))
		return
	}
	if err := f.Store.SaveSnapshot(ctx, dataset, now, raw); err != nil {
		f.Logger.Error("save snapshot", zap.String("dataset", dataset), zap.Error(err))
		return
	}

	if f.Events == nil {
		return
	}
	event, _ := json.Marshal(map[string]any{
		"dataset":   dataset,
		"fetchedAt": now,
	})
	f.Events.Publish(ctx, redis.ChannelDatasetUpdated, string(event))
	f.Events.XAdd(ctx, redis.StreamUpdates, map[string]interface{}{
		"dataset":    dataset,
		"fetched_at": now.Format(time.RFC3339Nano),
	})
}

// carbonInputs adapts a fetched indicator dataset to the resolver's input
// shapes.
func carbonInputs(ds *owid.Dataset) ([]metrics.IntensitySample, map[int]metrics.EntityMeta) {
	if ds == nil {
		return nil, nil
	}
	samples := make([]metrics.IntensitySample, 0, len(ds.Data.Values))
	for i := range ds.Data.Values {
		samples = append(samples, metrics.IntensitySample{
			EntityID: ds.Data.Entities[i],
			Year:     ds.Data.Years[i],
			Value:    ds.Data.Values[i],
		})
	}
	entities := make(map[int]metrics.EntityMeta, len(ds.Entities))
	for id, e := range ds.Entities {
		entities[id] = metrics.EntityMeta{Name: e.Name, Code: e.Code}
	}
	return samples, entities
}
