package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/boxlabel"
	"github.com/menta2k/boxlabel/internal/config"
	"github.com/menta2k/boxlabel/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file (yaml/json/toml); BOXLABEL_* env vars override it")
	addr := flag.String("addr", "", "listen address (default: server.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger := logging.Must(cfg.Server.Mode)
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, err := boxlabel.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open workspace", zap.Error(err))
	}
	defer ws.Close()

	srv := ws.NewServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("label server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("store", cfg.Store.Kind),
			zap.String("vision", cfg.Vision.Provider),
			zap.Bool("auth", cfg.Server.Token != ""))
		errCh <- srv.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}
}
