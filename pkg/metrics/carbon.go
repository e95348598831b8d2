package metrics

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

// IntensitySample is one (entity, year, value) observation from the carbon
// indicator's parallel arrays.
type IntensitySample struct {
	EntityID int
	Year     int
	Value    float64
}

// EntityMeta describes one indicator entity. Code is empty for continents,
// blocs and other aggregates that share the entity table with countries.
type EntityMeta struct {
	Name string
	Code string
}

// ResolveIntensities collapses the indicator's time series into one current
// intensity per country: for each entity only the record with the maximum
// year is retained (a strictly greater year replaces; an equal year does
// not). Entities with no metadata are skipped with a warning, and entities
// whose code is not exactly three characters are dropped, which filters the
// continent and region aggregates out of the country list.
//
// The returned list is sorted by intensity descending, ties keeping
// encounter order. That ordering is presentational, but downstream output
// depends on it being stable.
func ResolveIntensities(logger *zap.Logger, samples []IntensitySample, entities map[int]EntityMeta) []CountryIntensity {
	if logger == nil {
		logger = zap.NewNop()
	}

	latest := make(map[int]IntensitySample, len(entities))
	order := make([]int, 0, len(entities))
	for _, s := range samples {
		prev, seen := latest[s.EntityID]
		if !seen {
			latest[s.EntityID] = s
			order = append(order, s.EntityID)
			continue
		}
		if s.Year > prev.Year {
			latest[s.EntityID] = s
		}
	}

	out := make([]CountryIntensity, 0, len(order))
	for _, id := range order {
		meta, ok := entities[id]
		if !ok {
			logger.Warn("carbon indicator references unknown entity", zap.Int("entityId", id))
			continue
		}
		if len(meta.Code) != 3 {
			// Continent/region aggregate, not a country.
			continue
		}
		s := latest[id]
		out = append(out, CountryIntensity{
			Code:      meta.Code,
			Name:      meta.Name,
			Intensity: s.Value,
			Year:      s.Year,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Intensity > out[j].Intensity
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// GlobalAverageIntensity is the unweighted arithmetic mean across the
// resolved country list. Nil when the list is empty: zero would read as a
// zero-carbon grid.
func GlobalAverageIntensity(countries []CountryIntensity) *float64 {
	if len(countries) == 0 {
		return nil
	}
	var sum float64
	for _, c := range countries {
		sum += c.Intensity
	}
	avg := sum / float64(len(countries))
	return &avg
}

// BuildCarbonData assembles the published carbon snapshot with a
// caller-supplied wall-clock stamp.
func BuildCarbonData(ts time.Time, countries []CountryIntensity) CarbonIntensityData {
	return CarbonIntensityData{
		Countries:     countries,
		GlobalAverage: GlobalAverageIntensity(countries),
		LastUpdate:    ts,
	}
}
