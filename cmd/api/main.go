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

	"voicebridge/internal/aiprovider"
	"voicebridge/internal/auth"
	"voicebridge/internal/breaker"
	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/conference"
	"voicebridge/internal/config"
	"voicebridge/internal/costs"
	"voicebridge/internal/creds"
	"voicebridge/internal/crm"
	"voicebridge/internal/events"
	"voicebridge/internal/flows"
	"voicebridge/internal/httpapi"
	"voicebridge/internal/orchestrator"
	"voicebridge/internal/quality"
	"voicebridge/internal/registry"
	"voicebridge/internal/webhooks"
	"voicebridge/pkg/logger"
	"voicebridge/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
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

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence
	callRepo := calls.NewPGRepository(db)
	connRepo := creds.NewPGConnectionRepository(db)
	flowRepo := flows.NewPGRepository(db)
	crmStore := crm.NewPGStore(db)
	chargeRepo := costs.NewPGChargeRepository(db)

	// Shared call-plane state
	reg := registry.New()
	timers := registry.NewTimerStore()
	brk := breaker.New(cfg.Calls.BreakerFailureThreshold, cfg.Calls.BreakerCooldown)
	monitor := quality.NewMonitor(cfg.Calls.QualityWindowSize)
	resolver := creds.NewResolver(connRepo, cfg.Carrier, cfg.AI)
	verifier := carrier.NewVerifier(cfg.Carrier.AllowUnsignedWebhooks)
	sink := events.NewRedisSink(rdb)
	limiter := orchestrator.NewRedisCapLimiter(rdb, cfg.Calls.MaxConcurrentCallsPerCompany, cfg.Calls.StaleSessionMaxAge)

	orch := orchestrator.New(orchestrator.Deps{
		Log:           logger.Component(log, "orchestrator"),
		Repo:          callRepo,
		Registry:      reg,
		Timers:        timers,
		Resolver:      resolver,
		Verifier:      verifier,
		Carrier:       carrier.NewClient(),
		Breaker:       brk,
		Sink:          sink,
		CRM:           crmStore,
		Flows:         flowRepo,
		AI:            aiprovider.NewClient(cfg.AI),
		Monitor:       monitor,
		Limiter:       limiter,
		PublicBaseURL: cfg.App.PublicBaseURL,
		Calls:         cfg.Calls,
	})

	conferences := conference.New(conference.Deps{
		Log:      logger.Component(log, "conference"),
		Repo:     callRepo,
		Timers:   timers,
		Carrier:  carrier.NewClient(),
		Resolver: resolver,
		Calc:     costs.NewCalculator(cfg.Calls.RatePerParticipantMinuteMinor, cfg.Calls.CostCurrency),
		Tracker:  costs.NewTracker(chargeRepo),
		Sink:     sink,
		Calls:    cfg.Calls,
	})

	// Background loops share the root context and stop with the server.
	go orch.RunStaleSweeper(rootCtx)
	go conferences.RunSweeper(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	webhookHandlers := webhooks.Handlers{
		Log:           logger.Component(log, "webhooks"),
		Orch:          orch,
		Conferences:   conferences,
		PublicBaseURL: cfg.App.PublicBaseURL,
		VerifyToken:   cfg.Carrier.WebhookVerifyToken,
		Redis:         rdb,
	}

	apiHandlers := httpapi.Handlers{
		Log:         logger.Component(log, "httpapi"),
		Auth:        authManager,
		Orch:        orch,
		Conferences: conferences,
		Breaker:     brk,
		Monitor:     monitor,
		Registry:    reg,
		Repo:        callRepo,
		DB:          db,
		Redis:       rdb,
	}

	registerRoutes(r, webhookHandlers, apiHandlers, auth.RequireAccessToken(authManager))

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Live media sockets do not survive the process; close them deliberately
	// so the carrier sees clean disconnects.
	orch.ForceCleanupAll()
}
