package metrics

// Physical constants of the estimate. Node power is the measured average
// draw of a Meridian node under normal load; ledger sizes are the on-disk
// footprint of a standard node versus the relay/archiver tier, which holds
// the full indexed history.
const (
	AverageNodePowerW = 40.0
	HoursPerYear      = 8766.0 // 365.25 * 24, accounts for leap years

	StandardLedgerSizeGB = 128.0
	ArchiveLedgerSizeGB  = 2048.0

	// Annualized embodied+operational storage emissions per stored GB.
	StorageEmissionsKgCO2ePerGBYear = 0.023
)

// WeightedAverageIntensity is the node-count-weighted average grid intensity
// across the merged country list: each covered country contributes its
// nodePercentage share of its carbon intensity. Countries without intensity
// data contribute zero, which understates the true average when coverage is
// incomplete; the published figures carry that bias uncorrected. Note this
// weighting is distinct from the merge engine's emissions-percentage metric
// and the two are intentionally not unified.
func WeightedAverageIntensity(merged []MergedCountry) float64 {
	var weighted float64
	for _, m := range merged {
		if m.CarbonIntensity == nil {
			continue
		}
		weighted += (m.NodePercentage / 100) * *m.CarbonIntensity
	}
	return weighted
}

// CalculateNetworkPower derives the annualized power, energy and GHG figures
// from the node census and the merged country data. "Mainnet" covers the
// whole node population; "validation" covers the validator segment alone.
// Both use the same network-wide weighted intensity but their own energy and
// ledger-size figures.
func CalculateNetworkPower(node NodeData, merged []MergedCountry) NetworkPowerResults {
	nodePowerKW := AverageNodePowerW / 1000

	mainnetPowerKW := float64(node.TotalNodes) * nodePowerKW
	validatorPowerKW := float64(node.Validators) * nodePowerKW

	nodeEnergyKWh := nodePowerKW * HoursPerYear
	mainnetEnergyKWh := mainnetPowerKW * HoursPerYear
	validatorEnergyKWh := validatorPowerKW * HoursPerYear

	weightedIntensity := WeightedAverageIntensity(merged)

	// Relays and archivers both hold the large ledger tier.
	mainnetLedgerGB := StandardLedgerSizeGB*float64(node.TotalNodes) +
		ArchiveLedgerSizeGB*float64(node.Archivers+node.Relays)
	validatorLedgerGB := StandardLedgerSizeGB * float64(node.Validators)

	return NetworkPowerResults{
		MainnetPowerKW:                   mainnetPowerKW,
		ValidatorPowerKW:                 validatorPowerKW,
		NodeEnergyKWh:                    nodeEnergyKWh,
		MainnetEnergyKWh:                 mainnetEnergyKWh,
		ValidatorEnergyKWh:               validatorEnergyKWh,
		WeightedAvgEmissionsIntensity:    weightedIntensity,
		AnnualizedMainnetGHGEmissions:    annualGHGTonnes(mainnetEnergyKWh, weightedIntensity, mainnetLedgerGB),
		AnnualizedValidationGHGEmissions: annualGHGTonnes(validatorEnergyKWh, weightedIntensity, validatorLedgerGB),
	}
}

// annualGHGTonnes combines operational emissions (kWh times gCO2e/kWh,
// brought to kg) with annualized storage emissions (kg), in tonnes.
func annualGHGTonnes(energyKWh, intensityGPerKWh, ledgerGB float64) float64 {
	operationalKg := energyKWh * intensityGPerKWh / 1000
	storageKg := ledgerGB * StorageEmissionsKgCO2ePerGBYear
	return (operationalKg + storageKg) / 1000
}
