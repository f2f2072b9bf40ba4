package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunward-travel/agent-ledger/internal/booking"
	"github.com/sunward-travel/agent-ledger/internal/config"
	"github.com/sunward-travel/agent-ledger/internal/handler"
	"github.com/sunward-travel/agent-ledger/internal/logging"
	"github.com/sunward-travel/agent-ledger/internal/middleware"
	"github.com/sunward-travel/agent-ledger/internal/notify"
	"github.com/sunward-travel/agent-ledger/internal/repository"
	"github.com/sunward-travel/agent-ledger/internal/service/ledger"
	"github.com/sunward-travel/agent-ledger/internal/service/pricemod"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("agent-ledger-api", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)
	requests := repository.NewRequestRepository(db)
	audits := repository.NewAuditRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)

	ledgerSvc := ledger.NewService(accounts, transactions, audits, db)

	bookings := booking.NewClient(cfg.BookingServiceURL)
	notifier := buildNotifier(cfg)
	pricemodSvc := pricemod.NewService(requests, audits, ledgerSvc, bookings, notifier, db,
		time.Duration(cfg.NotifyTimeoutS)*time.Second)

	healthHandler := handler.NewHealthHandler(db)
	accountHandler := handler.NewAccountHandler(ledgerSvc)
	pricemodHandler := handler.NewPriceModHandler(pricemodSvc)
	auditHandler := handler.NewAuditHandler(audits)

	authed := middleware.Auth(cfg.JWTSecret)
	idem := middleware.Idempotency(idempotency)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }
	protectIdem := func(h http.HandlerFunc) http.Handler { return authed(idem(h)) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.Handle("POST /api/v1/accounts", protectIdem(accountHandler.Open))
	mux.Handle("GET /api/v1/agents/{agentID}/account", protect(accountHandler.Get))
	mux.Handle("POST /api/v1/agents/{agentID}/account/debit", protectIdem(accountHandler.Debit))
	mux.Handle("POST /api/v1/agents/{agentID}/account/credit", protectIdem(accountHandler.Credit))
	mux.Handle("POST /api/v1/agents/{agentID}/account/repay", protectIdem(accountHandler.Repay))
	mux.Handle("PUT /api/v1/agents/{agentID}/account/freeze", protect(accountHandler.SetFrozen))
	mux.Handle("GET /api/v1/agents/{agentID}/transactions", protect(accountHandler.ListTransactions))
	mux.Handle("GET /api/v1/bookings/{bookingID}/transactions", protect(accountHandler.ListTransactionsByBooking))

	mux.Handle("POST /api/v1/price-modifications", protectIdem(pricemodHandler.Create))
	mux.Handle("GET /api/v1/price-modifications", protect(pricemodHandler.List))
	mux.Handle("GET /api/v1/price-modifications/{requestID}", protect(pricemodHandler.Get))
	mux.Handle("POST /api/v1/price-modifications/{requestID}/respond", protectIdem(pricemodHandler.Respond))
	mux.Handle("POST /api/v1/price-modifications/{requestID}/cancel", protect(pricemodHandler.Cancel))
	mux.Handle("GET /api/v1/agents/{agentID}/price-modifications", protect(pricemodHandler.ListByAgent))
	mux.Handle("GET /api/v1/bookings/{bookingID}/price-modifications", protect(pricemodHandler.ListByBooking))

	mux.Handle("GET /api/v1/agents/{agentID}/audit-log", protect(auditHandler.ListByAgent))
	mux.Handle("GET /api/v1/bookings/{bookingID}/audit-log", protect(auditHandler.ListByBooking))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(context.Background(), cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}

// buildNotifier falls back to log-only delivery when Redis is not configured
// or unreachable at startup.
func buildNotifier(cfg *config.Config) pricemod.Notifier {
	if cfg.RedisAddr == "" {
		slog.Info("redis not configured, using log notifier")
		return notify.LogNotifier{}
	}

	client, err := notify.NewRedisClient(context.Background(), cfg.RedisAddr)
	if err != nil {
		slog.Warn("redis unavailable, using log notifier", "error", err, "addr", cfg.RedisAddr)
		return notify.LogNotifier{}
	}
	return notify.NewRedisNotifier(client, cfg.NotificationQueue)
}
