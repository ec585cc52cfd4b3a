package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"datalab/internal/analysis"
	"datalab/internal/api"
	"datalab/internal/codeexec"
	"datalab/internal/config"
	"datalab/internal/logging"
	datalabmcp "datalab/internal/mcp"
	"datalab/internal/sandbox"
	"datalab/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	ws, err := sandbox.Open(cfg.WorkspaceDir)
	if err != nil {
		logger.Error("open workspace", "dir", cfg.WorkspaceDir, "err", err)
		os.Exit(1)
	}
	logger.Info("workspace ready", "root", ws.Root())

	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer storeInst.Close()

	engine := codeexec.NewEngine(ws, logger, codeexec.Options{
		Interpreter: cfg.Exec.InterpreterArgs(),
		MaxTimeout:  cfg.Exec.MaxTimeout,
		OutputCap:   cfg.Exec.OutputCap,
	})

	svc := analysis.NewService(ws, storeInst, engine, logger, analysis.Defaults{
		MaxRows:        cfg.Modeling.MaxRows,
		CardinalityCap: cfg.Modeling.CardinalityCap,
	})
	mcpServer := datalabmcp.NewMCPServer(svc, logger)

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, svc, mcpServer, logger)
	case "mcp":
		runMCPMode(mcpServer, logger)
	case "both":
		runBothMode(cfg, svc, mcpServer, logger)
	default:
		logger.Error("invalid mode", "mode", cfg.Mode, "valid", []string{"http", "mcp", "both"})
		os.Exit(1)
	}
}

// runHTTPMode starts only the HTTP server (REST plus the /mcp endpoint).
func runHTTPMode(cfg *config.Config, svc *analysis.Service, mcpServer *datalabmcp.MCPServer, logger *slog.Logger) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, svc, mcpServer, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	logger.Info("shutdown complete")
}

// runMCPMode starts only the stdio MCP server.
func runMCPMode(mcpServer *datalabmcp.MCPServer, logger *slog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		logger.Info("received signal, shutting down...")
		os.Exit(0)
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode serves MCP on stdio and the HTTP API at the same time.
func runBothMode(cfg *config.Config, svc *analysis.Service, mcpServer *datalabmcp.MCPServer, logger *slog.Logger) {
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, svc, mcpServer, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	logger.Info("shutdown complete")
}
