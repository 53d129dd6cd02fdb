package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/internal/api"
	"github.com/ravipendurty/netmiko-mcp-server/internal/audit"
	"github.com/ravipendurty/netmiko-mcp-server/internal/config"
	"github.com/ravipendurty/netmiko-mcp-server/internal/events"
	"github.com/ravipendurty/netmiko-mcp-server/internal/logging"
	"github.com/ravipendurty/netmiko-mcp-server/internal/mcp"
	"github.com/ravipendurty/netmiko-mcp-server/internal/metrics"
	"github.com/ravipendurty/netmiko-mcp-server/internal/registry"
	"github.com/ravipendurty/netmiko-mcp-server/internal/session"
	"github.com/ravipendurty/netmiko-mcp-server/internal/transport"
	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func startCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mt := metrics.NewMetrics(prometheus.DefaultRegisterer)

	sshConfig := transport.DefaultSSHConfig()
	sshConfig.KnownHostsFile = cfg.Transport.KnownHostsFile
	if cfg.Transport.MaxOutputBytes > 0 {
		sshConfig.MaxOutputSize = cfg.Transport.MaxOutputBytes
	}
	if cfg.Transport.TermWidth > 0 {
		sshConfig.TermWidth = cfg.Transport.TermWidth
	}
	if cfg.Transport.TermHeight > 0 {
		sshConfig.TermHeight = cfg.Transport.TermHeight
	}

	manager := session.NewManager(registry.New(), transport.NewSSHTransport(sshConfig, logger), logger)
	manager.SetMetrics(mt)

	if err := manager.Preload(cfg.Devices); err != nil {
		logger.Warn("Some device configurations were skipped", zap.Error(err))
	}

	auditSvc, closeAudit, err := initAudit(ctx, cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer closeAudit()
	if auditSvc != nil {
		manager.SetRecorder(auditSvc)
		recordSystemEvent(ctx, auditSvc, models.AuditEventSystemStartup, logger)
	}

	publisher, closeEvents, err := initEvents(cfg.Events, logger)
	if err != nil {
		return err
	}
	defer closeEvents()
	manager.SetPublisher(publisher)

	mcpServer := mcp.NewServer(manager, mcp.ServerInfo{Name: cfg.Server.Name, Version: cfg.Server.Version}, logger)
	mcpServer.SetMetrics(mt)

	if cfg.HTTP.Enabled {
		handler := api.NewHandler(manager, mcpServer, auditSvc, cfg.Server.Version, logger)
		e := api.NewEcho(handler, api.ServerConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			RateLimit:      cfg.HTTP.RateLimit,
		}, prometheus.DefaultGatherer, logger)

		go func() {
			logger.Info("Starting HTTP server", zap.String("address", cfg.HTTP.Address))
			if err := e.Start(cfg.HTTP.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.Error(err))
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Starting NetMiko MCP server",
		zap.String("name", cfg.Server.Name),
		zap.String("version", cfg.Server.Version),
		zap.Int("preloaded_devices", len(manager.Registry().ListKnown())),
	)

	served := make(chan error, 1)
	go func() {
		served <- mcpServer.ServeStdio(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-served:
		if err != nil {
			logger.Error("MCP stdio server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.Shutdown(shutdownCtx)
	if auditSvc != nil {
		recordSystemEvent(shutdownCtx, auditSvc, models.AuditEventSystemShutdown, logger)
	}

	logger.Info("Server stopped")
	return nil
}

func initAudit(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*audit.Service, func(), error) {
	noop := func() {}
	if !cfg.Enabled {
		return nil, noop, nil
	}

	if cfg.PostgresDSN == "" {
		svc, err := audit.NewService(ctx, audit.NewInMemoryRepository(), logger)
		return svc, noop, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to parse audit database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to connect to audit database: %w", err)
	}

	repo := audit.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, noop, fmt.Errorf("failed to create audit schema: %w", err)
	}
	svc, err := audit.NewService(ctx, repo, logger)
	if err != nil {
		pool.Close()
		return nil, noop, err
	}
	logger.Info("Audit trail stored in PostgreSQL", zap.Int64("sequence", svc.Sequence()))
	return svc, pool.Close, nil
}

func initEvents(cfg config.EventsConfig, logger *zap.Logger) (session.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.NewLogPublisher(logger), func() {}, nil
	}

	publisher, err := events.Connect(events.Config{
		URL:           cfg.NATSURL,
		SubjectPrefix: cfg.SubjectPrefix,
		Timeout:       cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close NATS connection", zap.Error(err))
		}
	}, nil
}

func recordSystemEvent(ctx context.Context, svc *audit.Service, eventType models.AuditEventType, logger *zap.Logger) {
	builder := models.NewAuditEventBuilder(eventType).
		WithAction(string(eventType)).
		WithContext("version", version)
	if _, err := svc.Log(ctx, builder); err != nil {
		logger.Warn("Failed to record system event", zap.String("event", string(eventType)), zap.Error(err))
	}
}
