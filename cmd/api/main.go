package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetvoice-platform/internal/audit"
	"fleetvoice-platform/internal/auth"
	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/config"
	"fleetvoice-platform/internal/dispatch"
	"fleetvoice-platform/internal/hub"
	"fleetvoice-platform/internal/schedule"
	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/internal/transcripts"
	"fleetvoice-platform/internal/webhook"
	"fleetvoice-platform/migrations"
	"fleetvoice-platform/pkg/logger"
	"fleetvoice-platform/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(rootCtx, db, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores and services
	callStore := calls.NewStore(db)
	scheduleStore := schedule.NewStore(db)
	transcriptStore := transcripts.NewStore(db)
	auditor := audit.NewService(audit.NewPostgresRepo(db))
	provider := telephony.NewElevenLabsProvider(cfg.Provider)

	// Websocket hub with cross-instance fan-out
	eventHub := hub.New(log)
	bridge := hub.NewBridge(eventHub, rdb, log)
	go bridge.Run(rootCtx)

	// Webhook intake
	receiver := webhook.NewReceiver(webhook.NewPGStore(db), bridge, auditor, utils.RetryPolicy{}, log)

	// Dispatch loop
	dispatcher := dispatch.New(callStore, scheduleStore, provider, auditor, log, dispatch.Options{
		CallbackURL: cfg.WebhookCallbackURL(),
		Workers:     cfg.Dispatch.Workers,
		MaxInFlight: cfg.Dispatch.MaxInFlight,
		Redis:       rdb,
	})
	scheduler := dispatch.NewScheduler(dispatcher, cfg.Dispatch.TickInterval, log)
	if err := scheduler.Start(); err != nil {
		log.Error("scheduler start failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW:          auth.RequireAccessToken(authManager),
		callStore:       callStore,
		scheduleStore:   scheduleStore,
		transcriptStore: transcriptStore,
		receiver:        receiver,
		webhookSecret:   cfg.Provider.WebhookSecret,
		hub:             eventHub,
		db:              db,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error("scheduler stop failed", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
