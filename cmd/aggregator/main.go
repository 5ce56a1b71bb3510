// Command aggregator runs the weather observation aggregation server: it
// accepts PUT updates from content servers and GET reads from clients over
// a hand-rolled HTTP/1.1 socket protocol, enforcing Lamport clock ordering
// per peer and expiring stale observations on a schedule.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wxagg/aggregator/internal/applog"
	"github.com/wxagg/aggregator/internal/config"
	"github.com/wxagg/aggregator/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := applog.New(cfg.Dev, os.Stdout)
	slog.SetDefault(log)

	srv := server.New(server.Config{
		Addr:          ":" + cfg.Port,
		PoolSize:      cfg.PoolSize,
		QueueDepth:    cfg.QueueDepth,
		TTL:           cfg.TTL,
		SweepInterval: cfg.SweepInterval,
		DrainTimeout:  cfg.DrainTimeout,
		DataFile:      cfg.DataFile,
		Log:           log,
	})

	if err := srv.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	log.Info("aggregator listening", "addr", srv.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	srv.Stop()
	log.Info("shutdown complete")
}
