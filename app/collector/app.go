package collector

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/meridian-network/carbonx/pkg/db"
	"github.com/meridian-network/carbonx/pkg/grafana"
	"github.com/meridian-network/carbonx/pkg/logging"
	"github.com/meridian-network/carbonx/pkg/owid"
	"github.com/meridian-network/carbonx/pkg/redis"
	"github.com/meridian-network/carbonx/pkg/utils"
)

// App periodically pulls telemetry and emission-factor data, derives the
// published datasets and persists them, every Cron tick. A refresh message
// on the redis refresh channel triggers an immediate out-of-band cycle.
type App struct {
	Store       *db.Store
	RedisClient *redis.Client
	Fetcher     *Fetcher

	// Cron triggers fetch cycles at the interval given by CronSpec.
	Cron     *cron.Cron
	CronSpec string

	Logger *zap.Logger

	// Server serves the liveness and readiness probes.
	Server *http.Server
}

// Initialize initializes the App.
func Initialize(ctx context.Context) (*App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	store, storeErr := db.New(ctx, logger)
	if storeErr != nil {
		logger.Fatal("Unable to initialize clickhouse store", zap.Error(storeErr))
	}

	redisClient, redisErr := redis.NewClient(ctx, logger)
	if redisErr != nil {
		logger.Fatal("Unable to establish redis connection", zap.Error(redisErr))
	}

	fetcher := NewFetcher(logger, grafana.NewFromEnv(), owid.NewFromEnv(), store, redisClient)

	app := &App{
		Store:       store,
		RedisClient: redisClient,
		Fetcher:     fetcher,
		CronSpec:    utils.Env("FETCH_CRON", "0 */15 * * * *"),
		Logger:      logger,
	}

	if scheduleErr := app.SetupScheduler(ctx, cron.DefaultLogger, app.CronSpec); scheduleErr != nil {
		return nil, scheduleErr
	}
	app.SetupServer()

	return app, nil
}

// SetupServer sets up the probe HTTP server.
func (a *App) SetupServer() {
	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")

	r := mux.NewRouter()

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) })).Methods("GET")
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.Ready(req.Context()) {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(503)
		}
	})).Methods("GET")

	a.Server = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

// SetupScheduler sets up the cron scheduler.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := a.Cron.AddFunc(cronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := a.Fetcher.RunCycle(rctx); err != nil {
			logger.Info("[collector] fetch cycle error", "error", err)
		}
	})
	if err != nil {
		return err
	}

	return nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("[collector] Cron started", zap.String("cronSpec", a.CronSpec))
}

// StopCron stops the cron scheduler.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// watchRefresh listens on the refresh channel and runs an immediate cycle
// for every message until the context is canceled.
func (a *App) watchRefresh(ctx context.Context) {
	sub := a.RedisClient.Subscribe(ctx, redis.ChannelRefresh)
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
			a.Logger.Info("[collector] refresh requested", zap.String("payload", msg.Payload))
			a.runBoundedCycle(ctx, "refresh")
		}
	}
}

// runBoundedCycle runs one fetch cycle with a deadline and panic recovery,
// matching the protection the cron chain gives scheduled ticks.
func (a *App) runBoundedCycle(ctx context.Context, trigger string) {
	defer func() {
		if rec := recover(); rec != nil {
			a.Logger.Error("[collector] fetch cycle panic", zap.String("trigger", trigger), zap.Any("panic", rec))
		}
	}()
	rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := a.Fetcher.RunCycle(rctx); err != nil {
		a.Logger.Warn("[collector] fetch cycle error", zap.String("trigger", trigger), zap.Error(err))
	}
}

// Ready indicates whether the application is ready to handle operations.
func (a *App) Ready(ctx context.Context) bool {
	return a.Store.Db.Ping(ctx) == nil
}

// Alive indicates whether the application is alive, returning true if alive.
func (a *App) Alive() bool { return true }

// Start starts the application and blocks until the context is canceled.
// An initial cycle runs right away so the query service has data without
// waiting for the first tick.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	go a.watchRefresh(ctx)

	a.runBoundedCycle(ctx, "startup")

	a.StartCron()

	<-ctx.Done()
	_ = a.Server.Close()
	a.Logger.Info("[collector] shutting down…")
	a.StopCron()
	_ = a.RedisClient.Close()
	_ = a.Store.Close()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
