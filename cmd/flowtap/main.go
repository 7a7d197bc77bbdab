package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pavelkim/flowtap/internal/config"
	"github.com/pavelkim/flowtap/internal/logger"
	"github.com/pavelkim/flowtap/internal/queue"
	"github.com/pavelkim/flowtap/internal/runtime"
	"github.com/pavelkim/flowtap/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flowtap version %s\n", version.GetVersion())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Console: logger.SinkConfig(cfg.Logging.Console),
		File:    logger.SinkConfig(cfg.Logging.File),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("========================================")
	log.Info("Starting flowtap", "version", version.GetVersion())
	log.Info("========================================")
	log.Info("Configuration loaded", "file", *configPath)
	log.Info("Data plane settings",
		"flow_table_shards", cfg.DataPlane.FlowTableShards,
		"handoff_shards", cfg.DataPlane.HandoffShards,
		"burst_size", cfg.DataPlane.BurstSize,
		"cores", len(cfg.DataPlane.Cores))

	log.Info("Creating runtime...")
	rt, err := runtime.New(cfg, log, resolveQueue, nil)
	if err != nil {
		log.Error("Failed to create runtime", "error", err)
		os.Exit(1)
	}
	log.Info("[OK] Runtime created successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Start(ctx); err != nil {
		log.Error("Failed to start runtime", "error", err)
		os.Exit(1)
	}
	log.Info("[OK] Runtime started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("========================================")
	log.Info("Received shutdown signal (Ctrl+C)")
	log.Info("Shutting down gracefully...")
	cancel()
	rt.Stop()
	log.Info("[OK] Runtime stopped")

	log.Info("========================================")
	log.Info("flowtap terminated")
	log.Info("========================================")
}

// resolveQueue is the seam a real NIC driver binding (AF_XDP, a DPDK
// PMD, ...) plugs into. flowtap only consumes the queue.Queue
// interface, so until that binding is wired in, every configured
// queue resolves to a no-op placeholder.
func resolveQueue(name string, kind queue.Kind) (queue.Queue, error) {
	return queue.NewNoop(name, kind), nil
}
