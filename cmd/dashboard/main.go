// cmd/dashboard/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/config"
	"github.com/David-Botos/retail-bi/pkg/connector"
	"github.com/David-Botos/retail-bi/pkg/dashboard"
	"github.com/David-Botos/retail-bi/pkg/loader"
	"github.com/David-Botos/retail-bi/pkg/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := flag.String("env", "", "Path to an env file to load before reading the environment")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := cleaner.OptionsFromConfig(cfg.Cleaner)
	if err != nil {
		logger.Error("Invalid loader options", zap.Error(err))
		return 1
	}
	store := dashboard.NewFileStore(cfg.Dashboard.DataFolder, loader.NewLoader(opts.Loader, logger.Named("loader")), logger)
	if err := store.Reload(ctx); err != nil {
		logger.Warn("Initial data load failed; the API will report it", zap.Error(err))
	}

	var wh server.Warehouse
	if cfg.Dashboard.Backend == config.BackendWarehouse {
		sf, err := connector.NewConnectorFactory(cfg, logger).CreateSnowflakeConnector(ctx)
		if err != nil {
			logger.Error("Warehouse backend unavailable; serving file data only", zap.Error(err))
		} else {
			defer sf.Close()
			if err := sf.Validate(ctx); err != nil {
				logger.Warn("Warehouse validation failed", zap.Error(err))
			}
			wh = dashboard.NewWarehouseService(dashboard.NewSnowflakeWarehouse(sf, logger), logger)
		}
	}

	srv := server.New(cfg.Dashboard, store, wh, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server stopped", zap.Error(err))
			return 1
		}
		return 0
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Dashboard.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
		return 1
	}
	return 0
}
