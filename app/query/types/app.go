package types

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db/models"
	"github.com/meridian-network/carbonx/pkg/redis"
)

// SnapshotReader is the read-side surface of the snapshot store.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, dataset string) (*models.Snapshot, error)
	NodeStatsHistory(ctx context.Context, window time.Duration) ([]models.NodeStatsRow, error)
	CountryMetricsHistory(ctx context.Context, window time.Duration) ([]models.CountryMetricsRow, error)
	NetworkPowerHistory(ctx context.Context, window time.Duration) ([]models.NetworkPowerRow, error)
	Health(ctx context.Context) error
	Close() error
}

type App struct {
	DB SnapshotReader
	// RedisClient carries dataset-update events; nil when Redis is disabled,
	// in which case reads always go to the store and the WebSocket endpoint
	// is unavailable.
	RedisClient *redis.Client
	// Latest caches the last served payload per dataset; invalidated by
	// dataset-update events.
	Latest *xsync.Map[string, []byte]
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// WatchUpdates drops cached payloads whenever the collector announces a new
// fetch cycle, so the next read serves the fresh snapshot.
func (a *App) WatchUpdates(ctx context.Context) {
	if a.RedisClient == nil {
		return
	}
	sub := a.RedisClient.Subscribe(ctx, redis.ChannelDatasetUpdated)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			a.InvalidateFromEvent(msg.Payload)
		}
	}
}

// InvalidateFromEvent parses a dataset-update payload and evicts the named
// dataset, falling back to a full eviction on unparseable payloads.
func (a *App) InvalidateFromEvent(payload string) {
	event := struct {
		Dataset string `json:"dataset"`
	}{}
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.Dataset == "" {
		a.Latest.Clear()
		return
	}
	a.Latest.Delete(event.Dataset)
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	go a.WatchUpdates(ctx)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
