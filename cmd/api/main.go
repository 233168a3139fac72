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

	"call-platform/internal/auth"
	"call-platform/internal/calls"
	"call-platform/internal/config"
	"call-platform/internal/directory"
	"call-platform/internal/metrics"
	"call-platform/internal/notify"
	"call-platform/internal/reporting"
	"call-platform/internal/signaling"
	"call-platform/pkg/logger"
	"call-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// connCapTTL bounds how long a slot survives a process that died without
// releasing it.
const connCapTTL = 6 * time.Hour

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the process runner may provide the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New("call-platform", cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := calls.Migrate(rootCtx, db); err != nil {
		log.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	connCap, err := utils.NewConnectionCap(rdb, "signaling:conns:", cfg.Signaling.MaxConnsPerUser, connCapTTL)
	if err != nil {
		log.Error("connection cap init failed", "err", err)
		os.Exit(1)
	}

	dir := directory.NewPostgres(db)
	notifier := notify.NewService(notify.NewRedisPublisher(rdb, ""), dir)
	rooms := signaling.NewRegistry(log.With("component", "rooms"))

	store := calls.NewPostgresStore(db)
	callSvc := calls.NewService(
		store,
		calls.NewAuthorizer(dir, dir, dir),
		dir,
		notifier,
		rooms,
		calls.Options{
			MissedCallTimeout: cfg.Calls.MissedCallTimeout,
			Logger:            log,
		},
	)

	relay := signaling.NewRelay(rooms, callSvc)
	wsHandler := signaling.NewHandler(relay, signaling.HandlerOptions{
		WriteTimeout:   cfg.Signaling.WriteTimeout,
		AllowedOrigins: cfg.Signaling.AllowedOrigins,
		Limiter:        connCap,
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.Middleware())

	registerRoutes(r, routeDeps{
		auth:      authManager,
		db:        db,
		rdb:       rdb,
		calls:     callSvc,
		users:     dir,
		reports:   reporting.NewService(store),
		signaling: wsHandler,
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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Shutdown above skips hijacked websockets. Their read loops and the
	// pending missed-call checks both use the store; stop them before the
	// deferred db.Close runs.
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		log.Error("signaling shutdown failed", "err", err)
	}
	callSvc.Close()

	log.Info("shutdown complete")
}
