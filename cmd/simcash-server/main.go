// Command simcash-server wires the HTTP/WebSocket control plane around a
// running simulation, grounded on the teacher's cmd/settlement service
// entry point (router setup, middleware stack, graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simcash/internal/api"
	"simcash/internal/cloudarchive"
	"simcash/internal/persistence/postgres"
	"simcash/internal/simcore"
	"simcash/pkg/cache"
	"simcash/pkg/config"
	"simcash/pkg/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to the scenario YAML file to run")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "usage: simcash-server -scenario path/to/scenario.yaml")
		os.Exit(2)
	}

	log := logger.New("simcash-server")
	runtimeCfg := config.LoadRuntime()

	scenarioCfg, err := config.Load(*scenarioPath)
	if err != nil {
		log.Fatal("failed to load scenario", map[string]interface{}{"error": err.Error()})
	}

	sim, err := simcore.New(scenarioCfg)
	if err != nil {
		log.Fatal("failed to construct simulation", map[string]interface{}{"error": err.Error()})
	}

	var store *postgres.Store
	if runtimeCfg.Database.URL != "" {
		if err := postgres.Migrate(runtimeCfg.Database.URL, "file://internal/persistence/postgres/migrations"); err != nil {
			log.Warn("database migration failed, continuing without persistence", map[string]interface{}{"error": err.Error()})
		} else if db, err := sqlx.Connect("postgres", runtimeCfg.Database.URL); err != nil {
			log.Warn("database connection failed, continuing without persistence", map[string]interface{}{"error": err.Error()})
		} else {
			defer db.Close()
			db.SetMaxOpenConns(runtimeCfg.Database.MaxOpenConns)
			db.SetMaxIdleConns(runtimeCfg.Database.MaxIdleConns)
			db.SetConnMaxLifetime(runtimeCfg.Database.ConnMaxLifetime)
			store = postgres.NewStore(db)
			log.Info("persistence store connected", nil)
		}
	} else {
		log.Info("no DATABASE_URL configured, running without persistence", nil)
	}

	var queryCache *cache.RedisCache
	if redisCache, err := cache.NewRedisCache(runtimeCfg.Redis.URL, runtimeCfg.Redis.Password, runtimeCfg.Redis.DB); err != nil {
		log.Warn("redis cache disabled: connection failed", map[string]interface{}{"error": err.Error()})
	} else {
		defer redisCache.Close()
		queryCache = redisCache
		log.Info("query cache connected", nil)
	}

	archiveCtx := context.Background()
	archiver, err := cloudarchive.New(archiveCtx, cloudarchive.Config{
		Bucket: os.Getenv("SIMCASH_ARCHIVE_BUCKET"),
		RunID:  fmt.Sprintf("simcash-%d", os.Getpid()),
	})
	if err != nil {
		log.Warn("cloud archival disabled: failed to construct client", map[string]interface{}{"error": err.Error()})
		archiver = nil
	} else if archiver != nil {
		log.Info("cloud archival enabled", map[string]interface{}{"bucket": os.Getenv("SIMCASH_ARCHIVE_BUCKET")})
	}

	serverCfg := api.Config{
		Simulation:       sim,
		Logger:           log,
		JWTSecret:        runtimeCfg.JWT.Secret,
		TOTPKey:          os.Getenv("SIMCASH_TOTP_SECRET"),
		OperatorPassword: os.Getenv("SIMCASH_OPERATOR_PASSWORD"),
		Store:            store,
		Archiver:         archiver,
	}
	if queryCache != nil {
		serverCfg.Cache = queryCache
	}
	server := api.NewServer(serverCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", runtimeCfg.Server.Host, runtimeCfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  runtimeCfg.Server.ReadTimeout,
		WriteTimeout: runtimeCfg.Server.WriteTimeout,
		IdleTimeout:  runtimeCfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("simcash-server started", map[string]interface{}{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down simcash-server", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("forced shutdown", map[string]interface{}{"error": err.Error()})
	}
}
