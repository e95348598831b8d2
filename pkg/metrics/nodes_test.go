package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNodeTypesDefaults(t *testing.T) {
	// An absent row falls back to the documented defaults wholesale.
	counts := ParseNodeTypes(nil)
	assert.Equal(t, NodeTypeCounts{APINodes: 0, Validators: 0, Relays: 78, Archivers: 19}, counts)
}

func TestParseNodeTypes(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]any
		want NodeTypeCounts
	}{
		{
			name: "all fields present",
			row: map[string]any{
				FieldAPINodes:   float64(120),
				FieldValidators: float64(800),
				FieldRelays:     float64(80),
				FieldArchivers:  float64(20),
			},
			want: NodeTypeCounts{APINodes: 120, Validators: 800, Relays: 80, Archivers: 20},
		},
		{
			name: "zero relays and archivers fall back to fleet sizes",
			row: map[string]any{
				FieldAPINodes:   float64(50),
				FieldValidators: float64(500),
				FieldRelays:     float64(0),
				FieldArchivers:  float64(0),
			},
			want: NodeTypeCounts{APINodes: 50, Validators: 500, Relays: DefaultRelays, Archivers: DefaultArchivers},
		},
		{
			name: "invalid values: api nodes and validators to zero, never nonzero",
			row: map[string]any{
				FieldAPINodes:   "not-a-number",
				FieldValidators: nil,
				FieldRelays:     "garbage",
				FieldArchivers:  float64(19),
			},
			want: NodeTypeCounts{APINodes: 0, Validators: 0, Relays: DefaultRelays, Archivers: 19},
		},
		{
			name: "numeric strings are coerced",
			row: map[string]any{
				FieldAPINodes:   "42",
				FieldValidators: "900",
				FieldRelays:     "78",
				FieldArchivers:  "19",
			},
			want: NodeTypeCounts{APINodes: 42, Validators: 900, Relays: 78, Archivers: 19},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseNodeTypes([]map[string]any{tt.row}))
		})
	}
}

func TestParseHistoricalData(t *testing.T) {
	rows := []map[string]any{
		{FieldTime: float64(1717200000000), FieldNodeCount: float64(950)},
		{FieldTime: "2024-06-02T00:00:00Z", FieldNodeCount: float64(960)},
		{FieldTime: "yesterday-ish", FieldNodeCount: float64(999)}, // dropped
		{FieldNodeCount: float64(999)},                             // no timestamp, dropped
	}

	points := ParseHistoricalData(rows)
	require.Len(t, points, 2)
	assert.Equal(t, HistoricalPoint{Date: "2024-06-01", NodeCount: 950}, points[0])
	assert.Equal(t, HistoricalPoint{Date: "2024-06-02", NodeCount: 960}, points[1])

	assert.Nil(t, ParseHistoricalData(nil))
}

func TestDetectAnomalies(t *testing.T) {
	t.Run("consistent counts produce none", func(t *testing.T) {
		counts := NodeTypeCounts{APINodes: 100, Validators: 800, Relays: 78, Archivers: 19}
		assert.Empty(t, DetectAnomalies(counts, counts.Total()))
	})

	t.Run("validators exceed total", func(t *testing.T) {
		anomalies := DetectAnomalies(NodeTypeCounts{Validators: 1000, Relays: 78, Archivers: 19}, 500)
		require.NotEmpty(t, anomalies)
		assert.Contains(t, anomalies[0], "exceeds total node count")
	})

	t.Run("negative api nodes", func(t *testing.T) {
		anomalies := DetectAnomalies(NodeTypeCounts{APINodes: -50, Validators: 100}, 50)
		require.NotEmpty(t, anomalies)
		assert.Contains(t, anomalies[0], "negative")
	})

	t.Run("negative role counts each reported", func(t *testing.T) {
		anomalies := DetectAnomalies(NodeTypeCounts{Validators: -1, Relays: -2, Archivers: -3}, 10)
		assert.Len(t, anomalies, 3)
	})
}

func TestBuildNodeData(t *testing.T) {
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	counts := NodeTypeCounts{APINodes: 100, Validators: 800, Relays: 78, Archivers: 19}
	history := []HistoricalPoint{{Date: "2026-08-29", NodeCount: 995}}

	nd := BuildNodeData(ts, counts, history)
	// The total is always the sum of the parts, never fetched.
	assert.Equal(t, 997, nd.TotalNodes)
	assert.Equal(t, ts, nd.Timestamp)
	assert.Equal(t, history, nd.HistoricalData)
	assert.Equal(t, 800, nd.Validators)
}

func TestParseCountryDistribution(t *testing.T) {
	rows := []map[string]any{
		{FieldCountry: "DE", FieldNodeCount: float64(400)},
		{FieldCountry: "US", FieldNodeCount: float64(600)},
		{FieldCountry: "FR", FieldNodeCount: float64(0)},  // dropped
		{FieldCountry: "", FieldNodeCount: float64(10)},   // dropped
		{FieldCountry: "NL", FieldNodeCount: float64(-5)}, // dropped
	}

	dist := ParseCountryDistribution(rows)
	require.Len(t, dist, 2)
	assert.Equal(t, CountryNodeCount{CountryCode: "US", NodeCount: 600}, dist[0])
	assert.Equal(t, CountryNodeCount{CountryCode: "DE", NodeCount: 400}, dist[1])

	assert.Nil(t, ParseCountryDistribution(nil))
}
