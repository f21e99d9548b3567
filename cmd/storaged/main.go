// Command storaged serves the tiered content store: a hot, a cold, and an
// optional backup backend behind one blob API, with access-driven promotion
// and periodic tiering maintenance.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tierstore/tierstore/cmd/flags"
	"github.com/tierstore/tierstore/common"
	"github.com/tierstore/tierstore/httpserver"
	"github.com/tierstore/tierstore/metrics"
	"github.com/tierstore/tierstore/storage"
	"github.com/tierstore/tierstore/tracker"
)

var cliFlags = []cli.Flag{
	flags.ListenAddrFlag,
	flags.MetricsAddrFlag,
	flags.HotURIFlag,
	flags.ColdURIFlag,
	flags.BackupURIFlag,
	flags.AccessThresholdFlag,
	flags.HotTTLFlag,
	flags.TieringIntervalFlag,
	flags.LogJSONFlag,
	flags.LogDebugFlag,
	flags.LogUIDFlag,
	flags.LogServiceFlag,
	flags.PprofFlag,
	flags.DrainSecondsFlag,
}

func main() {
	app := &cli.App{
		Name:    "storaged",
		Usage:   "Serve locator-addressed blob storage across hot, cold and backup tiers",
		Version: common.Version,
		Flags:   cliFlags,
		Action:  runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		logger.Error("Failed to create metrics server", "err", err)
		return err
	}

	factory := storage.NewFactory(logger)
	store, err := factory.BuildHybrid(
		cCtx.String(flags.HotURIFlag.Name),
		cCtx.String(flags.ColdURIFlag.Name),
		cCtx.String(flags.BackupURIFlag.Name),
		storage.HybridConfig{
			AccessThreshold: cCtx.Uint64(flags.AccessThresholdFlag.Name),
			HotTTL:          cCtx.Duration(flags.HotTTLFlag.Name),
			Tracker:         tracker.New(),
			Metrics:         metricsSrv.Storage,
		},
	)
	if err != nil {
		logger.Error("Failed to build storage tiers", "err", err)
		return err
	}
	logger.Info("Storage tiers ready", "location", store.LocationURI())

	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger), httpserver.NewHandler(store, logger), metricsSrv)
	if err != nil {
		logger.Error("Failed to create HTTP server", "err", err)
		return err
	}
	srv.RunInBackground()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interval := cCtx.Duration(flags.TieringIntervalFlag.Name); interval > 0 {
		go runTieringLoop(ctx, store, interval)
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	srv.Shutdown()
	store.Wait()
	return nil
}

// runTieringLoop runs the maintenance pass on a fixed interval until the
// process is told to stop.
func runTieringLoop(ctx context.Context, store *storage.Hybrid, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.TriggerTiering(ctx)
		}
	}
}
