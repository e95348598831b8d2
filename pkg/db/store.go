// Package db is the snapshot store: the latest JSON document per dataset
// plus typed history tables for trend queries. The collector is the only
// writer; the query service only reads.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db/clickhouse"
	"github.com/meridian-network/carbonx/pkg/db/models"
	"github.com/meridian-network/carbonx/pkg/metrics"
	"github.com/meridian-network/carbonx/pkg/utils"
)

// ErrNoSnapshot is returned when a dataset has never been written.
var ErrNoSnapshot = errors.New("no snapshot for dataset")

// Store is the carbonx ClickHouse database.
type Store struct {
	clickhouse.Client
	Name string
}

// New connects to ClickHouse and ensures the carbonx database and tables
// exist.
func New(ctx context.Context, logger *zap.Logger) (*Store, error) {
	name := utils.Env("CARBONX_DB", "carbonx")
	client, err := clickhouse.New(ctx, logger.With(zap.String("db", name)), name)
	if err != nil {
		return nil, err
	}

	store := &Store{Client: client, Name: name}
	if err := store.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// Close terminates the underlying ClickHouse connection.
func (s *Store) Close() error {
	return s.Db.Close()
}

// Health reports whether the ClickHouse connection is usable.
func (s *Store) Health(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

// InitializeDB ensures the database and all tables exist.
func (s *Store) InitializeDB(ctx context.Context) error {
	s.Logger.Info("Initializing carbonx database", zap.String("database", s.Name))

	if err := s.CreateDbIfNotExists(ctx, s.Name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", s.Name, err)
	}

	if err := s.initSnapshots(ctx); err != nil {
		return err
	}
	if err := s.initNodeStats(ctx); err != nil {
		return err
	}
	if err := s.initCountryMetrics(ctx); err != nil {
		return err
	}
	return s.initNetworkPower(ctx)
}

// initSnapshots creates the per-dataset latest-document table. Replacing on
// the dataset key keeps exactly one live payload per dataset while old
// versions age out in merges.
func (s *Store) initSnapshots(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."snapshots" (
			dataset String,
			fetched_at DateTime64(6),
			payload String
		) ENGINE = ReplacingMergeTree(fetched_at)
		ORDER BY (dataset)
	`, s.Name)
	if err := s.Db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

func (s *Store) initNodeStats(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."node_stats" (
			fetched_at DateTime64(6),
			total_nodes UInt32,
			validators UInt32,
			relays UInt32,
			archivers UInt32,
			api_nodes UInt32
		) ENGINE = MergeTree()
		ORDER BY (fetched_at)
	`, s.Name)
	if err := s.Db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create node_stats table: %w", err)
	}
	return nil
}

func (s *Store) initCountryMetrics(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."country_metrics" (
			fetched_at DateTime64(6),
			country_code2 String,
			country_code3 Nullable(String),
			country_name String,
			node_count UInt32,
			node_percentage Float64,
			carbon_intensity Nullable(Float64),
			emissions_percentage Nullable(Float64),
			relative_emissions Nullable(Float64)
		) ENGINE = MergeTree()
		ORDER BY (fetched_at, country_code2)
	`, s.Name)
	if err := s.Db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create country_metrics table: %w", err)
	}
	return nil
}

func (s *Store) initNetworkPower(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."network_power" (
			fetched_at DateTime64(6),
			mainnet_power_kw Float64,
			validator_power_kw Float64,
			node_energy_kwh Float64,
			mainnet_energy_kwh Float64,
			validator_energy_kwh Float64,
			weighted_avg_emissions_intensity Float64,
			annualized_mainnet_ghg_emissions Float64,
			annualized_validation_ghg_emissions Float64
		) ENGINE = MergeTree()
		ORDER BY (fetched_at)
	`, s.Name)
	if err := s.Db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create network_power table: %w", err)
	}
	return nil
}

// SaveSnapshot upserts one dataset's JSON payload.
func (s *Store) SaveSnapshot(ctx context.Context, dataset string, fetchedAt time.Time, payload []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."snapshots" (dataset, fetched_at, payload)
		VALUES (?, ?, ?)
	`, s.Name)
	return s.Db.Exec(ctx, query, dataset, fetchedAt.UTC(), string(payload))
}

// LatestSnapshot returns the newest payload for a dataset, or ErrNoSnapshot.
func (s *Store) LatestSnapshot(ctx context.Context, dataset string) (*models.Snapshot, error) {
	var snap models.Snapshot
	query := fmt.Sprintf(`
		SELECT dataset, fetched_at, payload
		FROM "%s"."snapshots" FINAL
		WHERE dataset = ?
	`, s.Name)
	err := s.Db.QueryRow(ctx, query, dataset).ScanStruct(&snap)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return &snap, nil
}

// RecordNodeStats appends one fetch cycle's census to the history table.
func (s *Store) RecordNodeStats(ctx context.Context, fetchedAt time.Time, node metrics.NodeData) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."node_stats"
			(fetched_at, total_nodes, validators, relays, archivers, api_nodes)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.Name)
	return s.Db.Exec(ctx, query,
		fetchedAt.UTC(),
		uint32(node.TotalNodes),
		uint32(node.Validators),
		uint32(node.Relays),
		uint32(node.Archivers),
		uint32(node.APINodes),
	)
}

// RecordCountryMetrics appends one fetch cycle's merged country rows.
func (s *Store) RecordCountryMetrics(ctx context.Context, fetchedAt time.Time, merged []metrics.MergedCountry) error {
	if len(merged) == 0 {
		return nil
	}
	batch, err := s.Db.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO "%s"."country_metrics"`, s.Name))
	if err != nil {
		return fmt.Errorf("prepare country_metrics batch: %w", err)
	}
	at := fetchedAt.UTC()
	for _, m := range merged {
		if err := batch.Append(
			at,
			m.CountryCode2,
			m.CountryCode3,
			m.CountryName,
			uint32(m.NodeCount),
			m.NodePercentage,
			m.CarbonIntensity,
			m.EmissionsPercentage,
			m.RelativeEmissions,
		); err != nil {
			return fmt.Errorf("append country_metrics row: %w", err)
		}
	}
	return batch.Send()
}

// RecordNetworkPower appends one fetch cycle's derived figures.
func (s *Store) RecordNetworkPower(ctx context.Context, fetchedAt time.Time, p metrics.NetworkPowerResults) error {
	query := fmt.Sprintf(`
		INSERT INTO "%s"."network_power"
			(fetched_at, mainnet_power_kw, validator_power_kw, node_energy_kwh,
			 mainnet_energy_kwh, validator_energy_kwh, weighted_avg_emissions_intensity,
			 annualized_mainnet_ghg_emissions, annualized_validation_ghg_emissions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Name)
	return s.Db.Exec(ctx, query,
		fetchedAt.UTC(),
		p.MainnetPowerKW,
		p.ValidatorPowerKW,
		p.NodeEnergyKWh,
		p.MainnetEnergyKWh,
		p.ValidatorEnergyKWh,
		p.WeightedAvgEmissionsIntensity,
		p.AnnualizedMainnetGHGEmissions,
		p.AnnualizedValidationGHGEmissions,
	)
}

// NodeStatsHistory returns the recorded censuses within the trailing window,
// oldest first.
func (s *Store) NodeStatsHistory(ctx context.Context, window time.Duration) ([]models.NodeStatsRow, error) {
	query := fmt.Sprintf(`
		SELECT fetched_at, total_nodes, validators, relays, archivers, api_nodes
		FROM "%s"."node_stats"
		WHERE fetched_at >= ?
		ORDER BY fetched_at ASC
	`, s.Name)
	rows, err := s.Db.Query(ctx, query, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NodeStatsRow
	for rows.Next() {
		var r models.NodeStatsRow
		if err := rows.ScanStruct(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountryMetricsHistory returns the merged country rows recorded within the
// trailing window, oldest cycle first, countries by descending node count
// within each cycle.
func (s *Store) CountryMetricsHistory(ctx context.Context, window time.Duration) ([]models.CountryMetricsRow, error) {
	query := fmt.Sprintf(`
		SELECT fetched_at, country_code2, country_code3, country_name,
			node_count, node_percentage, carbon_intensity,
			emissions_percentage, relative_emissions
		FROM "%s"."country_metrics"
		WHERE fetched_at >= ?
		ORDER BY fetched_at ASC, node_count DESC
	`, s.Name)
	rows, err := s.Db.Query(ctx, query, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CountryMetricsRow
	for rows.Next() {
		var r models.CountryMetricsRow
		if err := rows.ScanStruct(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NetworkPowerHistory returns the derived power/energy/GHG figures recorded
// within the trailing window, oldest first.
func (s *Store) NetworkPowerHistory(ctx context.Context, window time.Duration) ([]models.NetworkPowerRow, error) {
	query := fmt.Sprintf(`
		SELECT fetched_at, mainnet_power_kw, validator_power_kw, node_energy_kwh,
			mainnet_energy_kwh, validator_energy_kwh, weighted_avg_emissions_intensity,
			annualized_mainnet_ghg_emissions, annualized_validation_ghg_emissions
		FROM "%s"."network_power"
		WHERE fetched_at >= ?
		ORDER BY fetched_at ASC
	`, s.Name)
	rows, err := s.Db.Query(ctx, query, time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NetworkPowerRow
	for rows.Next() {
		var r models.NetworkPowerRow
		if err := rows.ScanStruct(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
