package main

import (
	"context"
	"flag"
	"os"

	"github.com/tinyco/harvest/configs"
	"github.com/tinyco/harvest/internal/broker"
	"github.com/tinyco/harvest/internal/collector"
	"github.com/tinyco/harvest/internal/instruments"
	"github.com/tinyco/harvest/internal/logging"
	"github.com/tinyco/harvest/internal/storage"
)

func main() {
	subscribe := flag.Bool("subscribe", false, "collect the narrow subscribe list instead of the default list")
	flag.Parse()

	cfg := configs.AppLoad()
	logger := logging.New(cfg.App, cfg.LogPath, cfg.LogLevel)
	ctx := context.Background()

	stores, err := storage.NewStores(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Store connection failed: %v", err)
		os.Exit(1)
	}
	defer stores.Close(ctx)

	gate := broker.NewClient(cfg.Broker, logger)
	if err := gate.Connect(ctx); err != nil {
		// Degraded start: each fetch will retry the session lazily and
		// report empty batches until the broker comes back.
		logger.Warnf("Broker session not established: %v", err)
	}
	defer gate.Logout()

	registry := instruments.NewRegistry()
	pairs := registry.Default
	if *subscribe {
		pairs = registry.Subscribe
	}

	svc := collector.New(gate, stores.Relational, stores.Document, registry, cfg.Collector, logger)
	if err := svc.Run(ctx, pairs); err != nil {
		logger.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
}
