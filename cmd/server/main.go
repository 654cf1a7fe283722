// Orderbot - WhatsApp ordering agent server
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/jubot-ia/orderbot/internal/agent"
	"github.com/jubot-ia/orderbot/internal/api"
	"github.com/jubot-ia/orderbot/internal/config"
	"github.com/jubot-ia/orderbot/internal/conversation"
	"github.com/jubot-ia/orderbot/internal/health"
	"github.com/jubot-ia/orderbot/internal/intent"
	"github.com/jubot-ia/orderbot/internal/middleware"
	"github.com/jubot-ia/orderbot/internal/notify"
	"github.com/jubot-ia/orderbot/internal/session"
	"github.com/jubot-ia/orderbot/internal/store"
	"github.com/jubot-ia/orderbot/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	restaurant, err := config.LoadRestaurant(cfg.RestaurantPath)
	if err != nil {
		slog.Error("Failed to load restaurant profile", "error", err, "path", cfg.RestaurantPath)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"grpc_port", cfg.GRPCPort,
		"ledger", cfg.Ledger.Backend,
		"restaurant", restaurant.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize ledger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("Failed to close ledger", "error", closeErr)
		}
	}()

	if err := ledger.Ping(ctx); err != nil {
		slog.Error("Ledger health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Ledger connected", "backend", cfg.Ledger.Backend)

	gateway, err := agent.NewOpenAI(agent.Config{
		APIKey:      cfg.Agent.APIKey,
		Model:       cfg.Agent.Model,
		BaseURL:     cfg.Agent.BaseURL,
		Temperature: float32(restaurant.Temperature),
		Timeout:     cfg.Agent.Timeout,
	}, restaurant)
	if err != nil {
		slog.Error("Failed to initialize agent", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		QueueSize:     cfg.ConversationLog.QueueSize,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		MaxSizeMB:     cfg.ConversationLog.MaxSizeMB,
		MaxBackups:    cfg.ConversationLog.MaxBackups,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	sessions := session.NewStore(cfg.SessionTTL)
	hub := transport.NewHub(nil)

	handler := conversation.NewHandler(sessions, intent.NewRouter(nil), gateway, ledger, hub, conversationLogger)
	limiter := conversation.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Window)
	defer limiter.Stop()
	handler.SetRateLimiter(limiter)

	dispatcher := conversation.NewDispatcher(ctx, handler)
	hub.SetInbound(dispatcher.Enqueue)

	notify.StartWatcher(ctx, ledger, hub, cfg.NotifyInterval)

	healthSrv := health.NewServer(ledger)
	healthSrv.Watch(ctx, 30*time.Second)

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(cfg.BridgeToken))
		api.NewOrderHandler(api.NewHandler(ledger, sessions, dispatcher)).RegisterRoutes(r)
		r.Get("/bridge", hub.ServeHTTP)
	})

	// WebSocket bridge connections are long-lived; no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC health", "error", err, "port", cfg.GRPCPort)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC health listening", "addr", lis.Addr().String())
		if err := healthSrv.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	healthSrv.Stop()
	dispatcher.Close()

	slog.Info("Server stopped successfully")
}

func openLedger(ctx context.Context, cfg *config.Config) (store.Ledger, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerSheets:
		ledger, err := store.NewSheets(ctx, store.SheetsConfig{
			SpreadsheetID:   cfg.Ledger.SpreadsheetID,
			Tab:             cfg.Ledger.SheetTab,
			CredentialsFile: cfg.Ledger.CredentialsFile,
		})
		if err != nil {
			return nil, err
		}
		return ledger, nil
	case config.LedgerSQLite, "":
		ledger, err := store.NewSQLite(cfg.Ledger.DBPath)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}
}
