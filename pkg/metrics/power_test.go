package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateNetworkPowerScenario(t *testing.T) {
	node := NodeData{TotalNodes: 1000, Validators: 800, Relays: 78, Archivers: 19}

	results := CalculateNetworkPower(node, nil)
	// 1000 nodes at 40 W is 40 kW; over 8766 h that is 350640 kWh.
	assert.InDelta(t, 40, results.MainnetPowerKW, 1e-9)
	assert.InDelta(t, 350640, results.MainnetEnergyKWh, 1e-6)
	assert.InDelta(t, 32, results.ValidatorPowerKW, 1e-9)
	assert.InDelta(t, 32*8766, results.ValidatorEnergyKWh, 1e-6)
	assert.InDelta(t, 0.04*8766, results.NodeEnergyKWh, 1e-9)
	// With no country data the weighted intensity collapses to zero and the
	// GHG figures carry only the storage term.
	assert.Zero(t, results.WeightedAvgEmissionsIntensity)
	assert.Greater(t, results.AnnualizedMainnetGHGEmissions, 0.0)
}

func TestWeightedAverageIntensity(t *testing.T) {
	intensityA := 400.0
	intensityB := 100.0
	merged := []MergedCountry{
		{NodePercentage: 60, CarbonIntensity: &intensityA},
		{NodePercentage: 30, CarbonIntensity: &intensityB},
		{NodePercentage: 10, CarbonIntensity: nil}, // uncovered, contributes zero
	}

	// 0.6*400 + 0.3*100 = 270; the uncovered 10% silently understates the
	// true average, by design.
	assert.InDelta(t, 270, WeightedAverageIntensity(merged), 1e-9)
}

func TestCalculateNetworkPowerGHG(t *testing.T) {
	node := NodeData{TotalNodes: 1000, Validators: 800, Relays: 78, Archivers: 19}
	intensity := 250.0
	merged := []MergedCountry{{NodePercentage: 100, CarbonIntensity: &intensity}}

	results := CalculateNetworkPower(node, merged)
	require.InDelta(t, 250, results.WeightedAvgEmissionsIntensity, 1e-9)

	mainnetLedgerGB := StandardLedgerSizeGB*1000 + ArchiveLedgerSizeGB*(78+19)
	wantMainnet := (results.MainnetEnergyKWh*250/1000 + mainnetLedgerGB*StorageEmissionsKgCO2ePerGBYear) / 1000
	assert.InDelta(t, wantMainnet, results.AnnualizedMainnetGHGEmissions, 1e-9)

	validatorLedgerGB := StandardLedgerSizeGB * 800
	wantValidation := (results.ValidatorEnergyKWh*250/1000 + validatorLedgerGB*StorageEmissionsKgCO2ePerGBYear) / 1000
	assert.InDelta(t, wantValidation, results.AnnualizedValidationGHGEmissions, 1e-9)

	// Validation is a strict subset of mainnet.
	assert.Less(t, results.AnnualizedValidationGHGEmissions, results.AnnualizedMainnetGHGEmissions)
}

func TestCalculateNetworkPowerDeterministic(t *testing.T) {
	node := NodeData{TotalNodes: 997, Validators: 800, Relays: 78, Archivers: 19, APINodes: 100}
	intensity := 123.4
	merged := []MergedCountry{{NodePercentage: 100, CarbonIntensity: &intensity}}

	a := CalculateNetworkPower(node, merged)
	b := CalculateNetworkPower(node, merged)
	assert.Equal(t, a, b)
}

func TestCalculateNetworkPowerEmptyNetwork(t *testing.T) {
	results := CalculateNetworkPower(NodeData{}, nil)
	assert.Zero(t, results.MainnetPowerKW)
	assert.Zero(t, results.MainnetEnergyKWh)
	assert.Zero(t, results.AnnualizedValidationGHGEmissions)
}
