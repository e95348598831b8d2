package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/retry"
	"github.com/meridian-network/carbonx/pkg/utils"
)

// Client wraps a ClickHouse connection together with the database it targets.
type Client struct {
	Logger         *zap.Logger
	Db             driver.Conn
	TargetDatabase string
}

// New initializes a ClickHouse client from CLICKHOUSE_ADDR (comma-separated
// replica list) and CLICKHOUSE_USER / CLICKHOUSE_PASSWORD. The initial
// connection is retried with backoff; a cold ClickHouse at service start is
// routine in container environments.
func New(ctx context.Context, logger *zap.Logger, dbName string) (client Client, e error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	client.TargetDatabase = dbName

	replicas := strings.Split(utils.Env("CLICKHOUSE_ADDR", "localhost:9000"), ",")
	for i := range replicas {
		replicas[i] = strings.TrimSpace(replicas[i])
	}

	options := &clickhouse.Options{
		Addr: replicas,
		Auth: clickhouse.Auth{
			// Connect to default first; InitializeDB creates the target
			// database once connected.
			Database: "default",
			Username: utils.Env("CLICKHOUSE_USER", "default"),
			Password: utils.Env("CLICKHOUSE_PASSWORD", ""),
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Hour,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"prefer_column_name_to_alias": 1,
		},
	}

	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, err := clickhouse.Open(options)
		if err != nil {
			return fmt.Errorf("failed to open clickhouse connection: %w", err)
		}
		client.Db = conn

		client.Logger.Debug("Pinging ClickHouse connection")
		if err := client.Db.Ping(connCtx); err != nil {
			return fmt.Errorf("failed to ping clickhouse: %w", err)
		}
		return nil
	})
	if err != nil {
		return client, err
	}

	client.Logger.Info("Connected to ClickHouse",
		zap.Strings("replicas", replicas),
		zap.String("database", dbName))
	return client, nil
}

// CreateDbIfNotExists creates the target database when missing.
func (c *Client) CreateDbIfNotExists(ctx context.Context, name string) error {
	return c.Db.Exec(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, name))
}
