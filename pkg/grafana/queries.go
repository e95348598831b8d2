package grafana

import (
	"context"
	"fmt"

	"github.com/meridian-network/carbonx/pkg/utils"
)

// Datasource identifies the backing datasource of a query.
type Datasource struct {
	UID string `json:"uid"`
}

// Query is one datasource query within a request.
type Query struct {
	RefID      string     `json:"refId"`
	Datasource Datasource `json:"datasource"`
	RawSQL     string     `json:"rawSql,omitempty"`
	Format     string     `json:"format,omitempty"`
}

// QueryRequest is the body posted to the datasource query endpoint.
type QueryRequest struct {
	Queries []Query `json:"queries"`
	From    string  `json:"from"`
	To      string  `json:"to"`
}

const refID = "A"

func (c *Client) datasourceUID() string {
	return utils.Env("GRAFANA_DATASOURCE_UID", "meridian-telemetry")
}

func (c *Client) tableQuery(ctx context.Context, rawSQL, from, to string) ([]Row, error) {
	resp, err := c.Query(ctx, QueryRequest{
		Queries: []Query{{
			RefID:      refID,
			Datasource: Datasource{UID: c.datasourceUID()},
			RawSQL:     rawSQL,
			Format:     "table",
		}},
		From: from,
		To:   to,
	})
	if err != nil {
		return nil, err
	}
	return resp.FirstFrameRows(refID)
}

// NodeTypeDistribution returns the latest per-role node counts. The query
// yields a single row with validators, relays, archivers and api_nodes
// columns; zero rows is a valid no-data response.
func (c *Client) NodeTypeDistribution(ctx context.Context) ([]Row, error) {
	rows, err := c.tableQuery(ctx, `
		SELECT validators, relays, archivers, api_nodes
		FROM node_type_counts
		ORDER BY time DESC
		LIMIT 1
	`, "now-1h", "now")
	if err != nil {
		return nil, fmt.Errorf("fetch node type distribution: %w", err)
	}
	return rows, nil
}

// NodeCountHistory returns the daily node-count time series for the trailing
// window, oldest first.
func (c *Client) NodeCountHistory(ctx context.Context) ([]Row, error) {
	rows, err := c.tableQuery(ctx, `
		SELECT time, node_count
		FROM node_counts_daily
		ORDER BY time ASC
	`, "now-90d", "now")
	if err != nil {
		return nil, fmt.Errorf("fetch node count history: %w", err)
	}
	return rows, nil
}

// CountryDistribution returns current node counts per country, highest
// first. Countries with zero nodes are excluded at the source.
func (c *Client) CountryDistribution(ctx context.Context) ([]Row, error) {
	rows, err := c.tableQuery(ctx, `
		SELECT country, node_count
		FROM node_geography
		WHERE node_count > 0
		ORDER BY node_count DESC
	`, "now-1h", "now")
	if err != nil {
		return nil, fmt.Errorf("fetch country distribution: %w", err)
	}
	return rows, nil
}
