package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ap-approver-selection/internal/api"
	"github.com/pesio-ai/be-ap-approver-selection/internal/cache"
	"github.com/pesio-ai/be-ap-approver-selection/internal/client"
	"github.com/pesio-ai/be-ap-approver-selection/internal/handler"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/config"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/database"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/logger"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/middleware"
	"github.com/pesio-ai/be-ap-approver-selection/internal/platform/tracing"
	"github.com/pesio-ai/be-ap-approver-selection/internal/repository"
	"github.com/pesio-ai/be-ap-approver-selection/internal/selection"
	"github.com/pesio-ai/be-ap-approver-selection/internal/service"
	"github.com/pesio-ai/be-ap-approver-selection/internal/store/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approver Selection Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Stdout {
		if err := tracing.Init(cfg.Service.Name, cfg.Service.Version, cfg.Tracing.OutputFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer tracing.Shutdown(context.Background())
	}

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	directoryRepo := repository.NewApproverDirectoryRepository(db)
	levelRepo := repository.NewApprovalLevelRepository(db)
	configRepo := repository.NewApproverConfigRepository(db)
	statsRepo := repository.NewWorkloadStatsRepository(db)

	// Selection log: SQLite when configured, Postgres otherwise
	var (
		sink    selection.AuditSink
		history service.SelectionHistory
	)
	if cfg.Audit.SQLitePath != "" {
		store, err := sqlite.Open(cfg.Audit.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Audit.SQLitePath).Msg("Failed to open SQLite selection log")
		}
		defer store.Close()
		sink, history = store, store
		log.Info().Str("path", cfg.Audit.SQLitePath).Msg("Selection log stored in SQLite")
	} else {
		logRepo := repository.NewSelectionLogRepository(db)
		sink, history = logRepo, logRepo
	}

	// Load the selection policy file, if any, over the configured rules
	if cfg.Selection.PolicyFile != "" {
		sel, err := config.LoadSelectionPolicy(cfg.Selection.PolicyFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load selection policy")
		}
		cfg.Selection = sel
	}

	selectionService := service.NewApproverSelectionService(
		directoryRepo, levelRepo, configRepo, sink, cfg.Selection, log,
	).WithHistory(history).WithWorkloadStats(statsRepo)

	// Optional Redis constraint cache
	if cfg.Redis.Addr != "" {
		rdb := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable; constraint cache will fall back to database")
		}
		selectionService.WithConstraintCache(cache.NewConstraintCache(rdb, cfg.Redis.TTL, log.WithComponent("cache").Logger))
	}

	// Optional NATS notifications
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; selection notifications disabled")
		} else {
			defer nc.Drain()
			selectionService.WithNotifier(client.NewNotificationPublisher(nc, log.WithComponent("notifications").Logger))
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS notifications enabled")
		}
	}

	// Hot-reload the selection policy
	if cfg.Selection.PolicyFile != "" {
		reloader, err := config.NewPolicyReloader(cfg.Selection.PolicyFile, selectionService.ApplyPolicy, log.WithComponent("policy").Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to watch selection policy")
		}
		go reloader.Run(ctx)
	}

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(selectionService, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(selectionService, log.Logger)

	grpcServer := grpc.NewServer()
	api.RegisterApproverSelectionServer(grpcServer, grpcHandler)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
