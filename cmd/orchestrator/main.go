package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/maxepunk/ALN-Ecosystem-sub005/bridge/amqpbridge"
	"github.com/maxepunk/ALN-Ecosystem-sub005/conf"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/events"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/offline"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/player"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/registry"
	"github.com/maxepunk/ALN-Ecosystem-sub005/core/video"
	"github.com/maxepunk/ALN-Ecosystem-sub005/db"
	"github.com/maxepunk/ALN-Ecosystem-sub005/log"
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
	"github.com/maxepunk/ALN-Ecosystem-sub005/persistence"
	"github.com/maxepunk/ALN-Ecosystem-sub005/server/realtime"
)

func main() {
	_ = godotenv.Load()

	cfg, err := conf.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Error("loading configuration", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalog, err := core.LoadCatalog(cfg.TokensPath)
	if err != nil {
		log.Error("loading token database", "path", cfg.TokensPath, err)
		os.Exit(1)
	}

	var sessions model.SessionRepository
	var transactions model.TransactionRepository
	var repos *realtime.Repositories
	if cfg.DatabaseDSN != "" {
		database, err := db.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Error("opening database", err)
			os.Exit(1)
		}
		defer database.Close()
		sessions = persistence.NewSessionRepository(ctx, database.Builder())
		transactions = persistence.NewTransactionRepository(ctx, database.Builder())
		repos = &realtime.Repositories{
			Sessions: func(ctx context.Context) model.SessionRepository {
				return persistence.NewSessionRepository(ctx, database.Builder())
			},
			Transactions: func(ctx context.Context) model.TransactionRepository {
				return persistence.NewTransactionRepository(ctx, database.Builder())
			},
		}
	} else {
		log.Warn("no database configured, state is in-memory only")
	}

	bus := events.NewBus()

	playerClient := player.NewClient(cfg.Player.BaseURL, cfg.Player.RequestTimeout)
	orchestrator := video.NewOrchestrator(cfg.Video, playerClient, bus)
	orchestrator.Start(ctx)

	offlineQueue := offline.NewQueue(cfg.Offline, bus)
	go offlineQueue.RunSweeper(ctx)

	reg := registry.New(cfg.Session, bus, sessions, transactions)
	if err := reg.Load(); err != nil {
		log.Error("restoring persisted session", err)
		os.Exit(1)
	}

	svc := core.NewService(reg, offlineQueue, orchestrator, catalog, bus)

	hub := realtime.NewHub()
	broadcaster := realtime.NewBroadcaster(hub, bus, reg)
	broadcaster.SetupListeners()
	defer broadcaster.CleanupListeners()

	if cfg.AMQPURL != "" {
		bridge, err := amqpbridge.New(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Error("connecting event bridge", "url", cfg.AMQPURL, err)
			os.Exit(1)
		}
		defer bridge.Close()
		hub.SetMirror(bridge.Mirror)
		log.Info("event bridge connected", "exchange", cfg.AMQPExchange)
	}

	health := player.NewHealthChecker(playerClient, player.HealthConfig{
		Interval:    cfg.Player.HealthCheckInterval,
		Delay:       cfg.Player.ReconnectDelay,
		MaxDelay:    cfg.Player.MaxReconnectDelay,
		MaxAttempts: cfg.Player.MaxReconnectAttempts,
	}, func(connected bool) {
		log.Info("player connectivity changed", "connected", connected)
	}, func() {
		bus.SystemError.Publish(model.ErrorEvent{
			Code:    "player_unreachable",
			Message: "media player did not come back after repeated reconnect attempts",
		})
	})
	go health.Run(ctx)

	sync := realtime.NewSynchronizer(hub, reg, orchestrator, playerClient)
	auth := realtime.NewTokenAuthenticator(cfg.AuthSecret)
	gateway := realtime.NewGateway(hub, svc, sync, auth)
	router := realtime.NewRouter(gateway, svc, sync, repos)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("orchestrator listening", "host", cfg.Host, "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", err)
			os.Exit(1)
		}
	}()

	<-quit
	log.Info("shutting down")
	cancel()
	orchestrator.Stop()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("forced shutdown", err)
		return
	}
	log.Info("shutdown complete")
}
