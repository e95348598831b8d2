package models

import "time"

// Dataset names under which snapshots are stored and published.
const (
	DatasetNodes     = "nodes"
	DatasetCarbon    = "carbon"
	DatasetGeography = "geography"
	DatasetCountries = "countries"
	DatasetPower     = "power"
	DatasetMetadata  = "metadata"
)

// KnownDatasets lists every dataset the collector writes, in publish order.
var KnownDatasets = []string{
	DatasetNodes,
	DatasetCarbon,
	DatasetGeography,
	DatasetCountries,
	DatasetPower,
	DatasetMetadata,
}

// Snapshot is one dataset's latest JSON document. The table replaces on
// dataset name, so reads always see the newest fetch cycle's payload.
type Snapshot struct {
	Dataset   string    `ch:"dataset"`
	FetchedAt time.Time `ch:"fetched_at"`
	Payload   string    `ch:"payload"`
}

// NodeStatsRow is one fetch cycle's node census, kept as history for trend
// queries.
type NodeStatsRow struct {
	FetchedAt  time.Time `ch:"fetched_at" json:"fetchedAt"`
	TotalNodes uint32    `ch:"total_nodes" json:"totalNodes"`
	Validators uint32    `ch:"validators" json:"validators"`
	Relays     uint32    `ch:"relays" json:"relays"`
	Archivers  uint32    `ch:"archivers" json:"archivers"`
	APINodes   uint32    `ch:"api_nodes" json:"apiNodes"`
}

// CountryMetricsRow is one country's merged figures from one fetch cycle.
// Nullable columns mirror the published JSON nulls.
type CountryMetricsRow struct {
	FetchedAt           time.Time `ch:"fetched_at" json:"fetchedAt"`
	CountryCode2        string    `ch:"country_code2" json:"countryCode2"`
	CountryCode3        *string   `ch:"country_code3" json:"countryCode3"`
	CountryName         string    `ch:"country_name" json:"countryName"`
	NodeCount           uint32    `ch:"node_count" json:"nodeCount"`
	NodePercentage      float64   `ch:"node_percentage" json:"nodePercentage"`
	CarbonIntensity     *float64  `ch:"carbon_intensity" json:"carbonIntensity"`
	EmissionsPercentage *float64  `ch:"emissions_percentage" json:"emissionsPercentage"`
	RelativeEmissions   *float64  `ch:"relative_emissions" json:"relativeEmissions"`
}

// NetworkPowerRow is one fetch cycle's derived power/energy/GHG figures.
type NetworkPowerRow struct {
	FetchedAt                        time.Time `ch:"fetched_at" json:"fetchedAt"`
	MainnetPowerKW                   float64   `ch:"mainnet_power_kw" json:"mainnetPowerKW"`
	ValidatorPowerKW                 float64   `ch:"validator_power_kw" json:"validatorPowerKW"`
	NodeEnergyKWh                    float64   `ch:"node_energy_kwh" json:"nodeEnergyKWh"`
	MainnetEnergyKWh                 float64   `ch:"mainnet_energy_kwh" json:"mainnetEnergyKWh"`
	ValidatorEnergyKWh               float64   `ch:"validator_energy_kwh" json:"validatorEnergyKWh"`
	WeightedAvgEmissionsIntensity    float64   `ch:"weighted_avg_emissions_intensity" json:"weightedAvgEmissionsIntensity"`
	AnnualizedMainnetGHGEmissions    float64   `ch:"annualized_mainnet_ghg_emissions" json:"annualizedMainnetGHGEmissions"`
	AnnualizedValidationGHGEmissions float64   `ch:"annualized_validation_ghg_emissions" json:"annualizedValidationGHGEmissions"`
}
