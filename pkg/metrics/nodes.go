package metrics

import (
	"fmt"
	"sort"
	"time"
)

// ParseNodeTypes turns the node-type-distribution query result (expected:
// exactly one row) into a validated per-role census. With no row present the
// whole census falls back to defaults; with a row present, api nodes and
// validators default to zero on missing or invalid values while relays and
// archivers fall back to their fixed fleet sizes on missing, invalid or zero.
func ParseNodeTypes(rows []map[string]any) NodeTypeCounts {
	if len(rows) == 0 {
		return NodeTypeCounts{
			APINodes:   0,
			Validators: 0,
			Relays:     DefaultRelays,
			Archivers:  DefaultArchivers,
		}
	}
	row := rows[0]
	return NodeTypeCounts{
		APINodes:   countField(row, FieldAPINodes, 0),
		Validators: countField(row, FieldValidators, 0),
		Relays:     countFieldNonZero(row, FieldRelays, DefaultRelays),
		Archivers:  countFieldNonZero(row, FieldArchivers, DefaultArchivers),
	}
}

// ParseHistoricalData converts the node-count time series into dated points.
// Rows whose timestamp fails to parse are dropped silently; partial history
// is acceptable and not an error.
func ParseHistoricalData(rows []map[string]any) []HistoricalPoint {
	if len(rows) == 0 {
		return nil
	}
	out := make([]HistoricalPoint, 0, len(rows))
	for _, row := range rows {
		ts, ok := timeField(row, FieldTime)
		if !ok {
			continue
		}
		out = append(out, HistoricalPoint{
			Date:      ts.Format("2006-01-02"),
			NodeCount: countField(row, FieldNodeCount, 0),
		})
	}
	return out
}

// DetectAnomalies validates a census against the derived total and returns
// human-readable advisory messages for any internal inconsistency. The
// caller decides what to do with an anomalous fetch; nothing here is fatal.
func DetectAnomalies(counts NodeTypeCounts, totalNodes int) []string {
	var anomalies []string
	if counts.APINodes < 0 {
		anomalies = append(anomalies, fmt.Sprintf(
			"api node count is negative (%d): validators exceed the total tracked nodes upstream", counts.APINodes))
	}
	if counts.Validators > totalNodes {
		anomalies = append(anomalies, fmt.Sprintf(
			"validator count (%d) exceeds total node count (%d)", counts.Validators, totalNodes))
	}
	if counts.Validators < 0 {
		anomalies = append(anomalies, fmt.Sprintf("validator count is negative (%d)", counts.Validators))
	}
	if counts.Relays < 0 {
		anomalies = append(anomalies, fmt.Sprintf("relay count is negative (%d)", counts.Relays))
	}
	if counts.Archivers < 0 {
		anomalies = append(anomalies, fmt.Sprintf("archiver count is negative (%d)", counts.Archivers))
	}
	return anomalies
}

// BuildNodeData assembles the published node snapshot. The timestamp is
// supplied by the caller so identical inputs always derive identical data.
func BuildNodeData(ts time.Time, counts NodeTypeCounts, history []HistoricalPoint) NodeData {
	return NodeData{
		Timestamp:      ts,
		TotalNodes:     counts.Total(),
		Validators:     counts.Validators,
		Relays:         counts.Relays,
		Archivers:      counts.Archivers,
		APINodes:       counts.APINodes,
		HistoricalData: history,
	}
}

// ParseCountryDistribution converts the per-country query result into the
// distribution consumed by the merge engine: positive counts only, sorted
// descending by count (stable for equal counts).
func ParseCountryDistribution(rows []map[string]any) []CountryNodeCount {
	out := make([]CountryNodeCount, 0, len(rows))
	for _, row := range rows {
		code := stringField(row, FieldCountry)
		count := countField(row, FieldNodeCount, 0)
		if code == "" || count <= 0 {
			continue
		}
		out = append(out, CountryNodeCount{CountryCode: code, NodeCount: count})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NodeCount > out[j].NodeCount
	})
	if len(out) == 0 {
		return nil
	}
	return out
}
