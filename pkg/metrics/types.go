// Package metrics derives the network's energy and emissions figures from
// decoded telemetry rows and the carbon-intensity indicator. Everything here
// is a pure, synchronous transformation: inputs are already-decoded values,
// outputs are fresh immutable snapshots, and re-running any function on the
// same inputs yields bit-identical results.
package metrics

import "time"

// Default role counts substituted when the node-type query returns nothing.
// Relay and archiver fleets are fixed infrastructure, so they fall back to
// their known deployment sizes rather than zero.
const (
	DefaultRelays    = 78
	DefaultArchivers = 19
)

// Field names of the telemetry query results.
const (
	FieldTime       = "time"
	FieldNodeCount  = "node_count"
	FieldCountry    = "country"
	FieldValidators = "validators"
	FieldRelays     = "relays"
	FieldArchivers  = "archivers"
	FieldAPINodes   = "api_nodes"
)

// NodeTypeCounts is the per-role node census from one fetch cycle.
type NodeTypeCounts struct {
	APINodes   int `json:"apiNodes"`
	Validators int `json:"validators"`
	Relays     int `json:"relays"`
	Archivers  int `json:"archivers"`
}

// Total is the arithmetic sum of the four role counts. The network-wide
// total is never fetched independently, so it is definitionally consistent
// with its parts.
func (c NodeTypeCounts) Total() int {
	return c.APINodes + c.Validators + c.Relays + c.Archivers
}

// HistoricalPoint is one day of the node-count time series.
type HistoricalPoint struct {
	Date      string `json:"date"` // calendar date, no time component
	NodeCount int    `json:"nodeCount"`
}

// NodeData is the published node-statistics snapshot.
type NodeData struct {
	Timestamp      time.Time         `json:"timestamp"`
	TotalNodes     int               `json:"totalNodes"`
	Validators     int               `json:"validators"`
	Relays         int               `json:"relays"`
	Archivers      int               `json:"archivers"`
	APINodes       int               `json:"apiNodes"`
	HistoricalData []HistoricalPoint `json:"historicalData,omitempty"`
}

// CountryIntensity is one country's current grid carbon intensity: the
// most-recent-year observation for that entity, in gCO2e/kWh.
type CountryIntensity struct {
	Code      string  `json:"code"` // ISO 3166-1 alpha-3
	Name      string  `json:"name"`
	Intensity float64 `json:"intensity"`
	Year      int     `json:"year"`
}

// CarbonIntensityData is the published carbon snapshot. GlobalAverage is nil
// when no countries resolved; zero would falsely imply a zero-carbon grid.
type CarbonIntensityData struct {
	Countries     []CountryIntensity `json:"countries"`
	GlobalAverage *float64           `json:"globalAverage"`
	LastUpdate    time.Time          `json:"lastUpdate"`
}

// CountryNodeCount is one country's share of the node population, keyed by
// alpha-2 code. Distribution lists are filtered to positive counts and
// sorted descending before they reach the merge engine.
type CountryNodeCount struct {
	CountryCode string `json:"countryCode"`
	NodeCount   int    `json:"nodeCount"`
}

// GeographicalData is the published node-distribution snapshot.
type GeographicalData struct {
	Countries []CountryNodeCount `json:"countries"`
	Timestamp time.Time          `json:"timestamp"`
}

// MergedCountry joins one country's node share with its grid intensity. The
// emissions-side fields are nil when the country's alpha-2 code has no
// alpha-3 mapping (CountryCode3 nil) or when no intensity record matched;
// the two cases stay distinguishable through CountryCode3.
type MergedCountry struct {
	CountryCode2        string   `json:"countryCode2"`
	CountryCode3        *string  `json:"countryCode3"`
	CountryName         string   `json:"countryName"`
	FlagEmoji           string   `json:"flagEmoji"`
	NodeCount           int      `json:"nodeCount"`
	NodePercentage      float64  `json:"nodePercentage"`
	CarbonIntensity     *float64 `json:"carbonIntensity"`
	EmissionsPercentage *float64 `json:"emissionsPercentage"`
	RelativeEmissions   *float64 `json:"relativeEmissions"`
}

// NetworkPowerResults are the derived power, energy and GHG figures for the
// whole network ("mainnet") and for the validator segment alone. Pure
// derived values; recomputed whenever node or country data changes.
type NetworkPowerResults struct {
	MainnetPowerKW                   float64 `json:"mainnetPowerKW"`
	ValidatorPowerKW                 float64 `json:"validatorPowerKW"`
	NodeEnergyKWh                    float64 `json:"nodeEnergyKWh"`
	MainnetEnergyKWh                 float64 `json:"mainnetEnergyKWh"`
	ValidatorEnergyKWh               float64 `json:"validatorEnergyKWh"`
	WeightedAvgEmissionsIntensity    float64 `json:"weightedAvgEmissionsIntensity"`
	AnnualizedMainnetGHGEmissions    float64 `json:"annualizedMainnetGHGEmissions"`
	AnnualizedValidationGHGEmissions float64 `json:"annualizedValidationGHGEmissions"`
}
