package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"townsquare/internal/config"
	"townsquare/internal/database/db_client"
	"townsquare/internal/http/http_server"
	"townsquare/internal/http/squarehandler"
	"townsquare/internal/redis/redis_client"
	"townsquare/internal/services/directory"
	"townsquare/internal/services/geo"
	"townsquare/internal/services/history"
	"townsquare/internal/ws"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Message history backend (memory-only when retention is 0)
	hist, err := openHistory(ctx, cfg)
	if err != nil {
		Log.Fatal("Failed to open history backend", zap.Error(err))
	}

	// 4. Background: retention pruner
	if cfg.RetentionHours > 0 {
		history.RunPruner(ctx, hist, cfg.PruneInterval)
	}

	// 5. Static directory + nearby-city services
	dirSvc := directory.NewDirectoryService()
	geoSvc := geo.NewGeoService(dirSvc)

	// 6. Room hub + typing-expiry sweep
	hub := ws.NewHub(hist, cfg.TypingTTL)
	go hub.RunTypingSweep(ctx, cfg.TypingTTL/2)

	// 7. Initialize the WS server
	wsSrv := ws.NewWsServer(hub, dirSvc, hist, ws.Options{
		BackfillLimit:  cfg.BackfillLimit,
		SendBuffer:     cfg.SendBuffer,
		MaxTextLen:     cfg.MaxTextLen,
		IdleTimeout:    cfg.IdleTimeout,
		AllowedOrigins: cfg.CorsOrigins,
	})

	// 8. HTTP + WS server
	handler := squarehandler.New(dirSvc, geoSvc, cfg.DefaultCity, cfg.NearbyLimit)
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, handler, cfg.CorsOrigins)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err := <-errCh:
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	case <-ctx.Done():
		Log.Info("shutting_down")
		if err := httpServer.Dispose(); err != nil {
			Log.Error("shutdown_failed", zap.Error(err))
		}
	}
}

// openHistory picks the store behind the append/recent/prune contract.
func openHistory(ctx context.Context, cfg *config.Config) (history.IHistoryService, error) {
	retention := cfg.Retention()
	if retention <= 0 {
		return history.NewMemoryHistory(0), nil
	}

	switch cfg.HistoryBackend {
	case "sqlite":
		db, err := db_client.OpenSqlite(cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		if err := history.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return history.NewSQLHistory(db, retention), nil
	case "postgres":
		db, err := db_client.OpenPostgres(cfg.PostgresHost, cfg.PostgresPort,
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			return nil, err
		}
		if err := history.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return history.NewSQLHistory(db, retention), nil
	case "redis":
		rdc, err := redis_client.NewRedisClient(ctx, cfg.RedisHost, int(cfg.RedisPort))
		if err != nil {
			return nil, err
		}
		return history.NewRedisHistory(rdc, retention), nil
	default:
		return history.NewMemoryHistory(retention), nil
	}
}
