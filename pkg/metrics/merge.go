package metrics

import (
	"github.com/meridian-network/carbonx/pkg/geo"
)

// mergeRaw is the pass-1 intermediate: per-country figures computed before
// the totals are known.
type mergeRaw struct {
	code2             string
	code3             *string
	nodeCount         int
	intensity         *float64
	weightedEmissions float64
}

// MergeCountryData joins the per-country node distribution (alpha-2 keyed)
// with the resolved carbon intensities (alpha-3 keyed). The distribution
// side is authoritative for the row set: every input country produces a row,
// whether or not carbon data covers it.
//
// The computation is two staged: raw and weighted figures first, then a
// fold into totals, then percentages, so the zero-division
// guards and null propagation stay auditable. Countries without intensity
// coverage contribute zero to the weighted-emissions total but keep their
// full node count in the node total; that skews relativeEmissions for the
// covered countries slightly upward, a known property of the published
// figures that must be preserved.
func MergeCountryData(distribution []CountryNodeCount, intensities []CountryIntensity) []MergedCountry {
	if len(distribution) == 0 {
		return nil
	}

	intensityByCode := make(map[string]float64, len(intensities))
	for _, ci := range intensities {
		intensityByCode[ci.Code] = ci.Intensity
	}

	// Pass 1: per-country raw figures.
	raw := make([]mergeRaw, 0, len(distribution))
	for _, c := range distribution {
		r := mergeRaw{code2: c.CountryCode, nodeCount: c.NodeCount}
		if a3, ok := geo.Alpha3(c.CountryCode); ok {
			r.code3 = &a3
			if intensity, found := intensityByCode[a3]; found {
				v := intensity
				r.intensity = &v
				r.weightedEmissions = float64(c.NodeCount) * intensity
			}
		}
		raw = append(raw, r)
	}

	// Totals.
	var totalNodes int
	var totalWeightedEmissions float64
	for _, r := range raw {
		totalNodes += r.nodeCount
		totalWeightedEmissions += r.weightedEmissions
	}
	if totalNodes == 0 {
		// Distribution rows are pre-filtered to positive counts, so this
		// only happens on an empty effective input.
		return nil
	}

	// Pass 2: percentages and presentational fields.
	out := make([]MergedCountry, 0, len(raw))
	for _, r := range raw {
		m := MergedCountry{
			CountryCode2:    r.code2,
			CountryCode3:    r.code3,
			CountryName:     geo.Name(r.code2),
			FlagEmoji:       geo.Flag(r.code2),
			NodeCount:       r.nodeCount,
			NodePercentage:  100 * float64(r.nodeCount) / float64(totalNodes),
			CarbonIntensity: r.intensity,
		}
		if r.intensity != nil && totalWeightedEmissions > 0 {
			ep := 100 * r.weightedEmissions / totalWeightedEmissions
			m.EmissionsPercentage = &ep
			if m.NodePercentage != 0 {
				re := ep / m.NodePercentage
				m.RelativeEmissions = &re
			}
		}
		out = append(out, m)
	}
	return out
}
