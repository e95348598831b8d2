package collector

import "time"

// Upstream source names as they appear in the freshness map.
const (
	SourceNodeTypes = "nodeTypes"
	SourceTelemetry = "telemetry"
	SourceGeography = "geography"
	SourceCarbon    = "carbon"
)

// SourceFreshness tracks one upstream source across fetch cycles. A failed
// cycle leaves the previous snapshot in place and marks the source stale.
type SourceFreshness struct {
	LastSuccessfulFetch *time.Time `json:"lastSuccessfulFetch"`
	IsStale             bool       `json:"isStale"`
	Error               string     `json:"error,omitempty"`
}

// Metadata is the per-cycle record published alongside the datasets. Errors
// carries the aggregator's anomaly messages and any source fetch errors;
// the policy here is persist-with-warning, so an anomalous census is still
// written and the warnings travel with it.
type Metadata struct {
	LastUpdate    time.Time                  `json:"lastUpdate"`
	DataFreshness map[string]SourceFreshness `json:"dataFreshness"`
	Errors        []string                   `json:"errors,omitempty"`
	Version       string                     `json:"version"`
}
