package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"bond-inventory/src/config"
	"bond-inventory/src/data_source/collector"
	"bond-inventory/src/interfaces"
	"bond-inventory/src/logger"
	"bond-inventory/src/scheduler"
	"bond-inventory/src/server"
	"bond-inventory/src/storage"
	"bond-inventory/src/store"
)

// -----------------------------------------------------------------------------

func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// 4. Setup Persistence Adapter
	var persistence interfaces.IPersistence

	switch conf.Storage.Backend {
	case "file":
		persistence = storage.NewFileStorage(conf.MConfig, appLogger)
	case "sqlite":
		persistence, err = storage.NewSQLiteStorage(conf.MConfig, appLogger)
	case "postgres":
		persistence, err = storage.NewPostgresStorage(conf.MConfig, appLogger)
	default:
		persistence = storage.NewMemoryStorage()
	}
	if err != nil {
		appLogger.Critical("Failed to init %s storage: %v", conf.Storage.Backend, err)
	}
	defer persistence.Close()

	// 5. Setup Components
	seriesStore := store.NewSeriesStore(conf.MConfig, persistence, appLogger)
	source := collector.NewCollectorSource(conf.MConfig)
	sched := scheduler.NewRefreshScheduler(conf.MConfig, source, seriesStore)
	srv := server.NewAPIServer(conf.MConfig, appLogger, seriesStore, sched)

	// Push every successful refresh to connected dashboards
	sched.OnRefresh = srv.BroadcastRefresh

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}

	// 6. Seed the store and start the refresh loop (idempotent gate)
	if err := sched.Start(ctx, wg); err != nil {
		appLogger.Critical("Failed to start scheduler: %v", err)
	}

	// 7. Watch the config file: refresh interval and cache TTL apply live
	go func() {
		err := config.Watch(ctx, *configPath, appLogger, func(updated *config.Config) {
			sched.SetInterval(time.Duration(updated.Source.RefreshIntervalSeconds) * time.Second)
			srv.ResponseCache.SetTTL(time.Duration(updated.Cache.TTLSeconds) * time.Second)
		})
		if err != nil {
			appLogger.Warning("Config watch unavailable: %v", err)
		}
	}()

	// 8. Start Server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	cancel()   // Signal scheduler to stop
	srv.Stop() // Disconnect websocket clients and stop the hub
	wg.Wait()  // Wait for the refresh loop to close
}
