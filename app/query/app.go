package query

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/app/query/types"
	"github.com/meridian-network/carbonx/pkg/db"
	"github.com/meridian-network/carbonx/pkg/logging"
	"github.com/meridian-network/carbonx/pkg/redis"
	"github.com/meridian-network/carbonx/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, storeErr := db.New(ctx, logger)
	if storeErr != nil {
		logger.Fatal("Unable to initialize snapshot store", zap.Error(storeErr))
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "true") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	app := &types.App{
		DB:          store,
		RedisClient: redisClient,
		Latest:      xsync.NewMap[string, []byte](),
		Logger:      logger,
	}

	return app
}
