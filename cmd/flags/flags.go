// Package flags holds the CLI flags and setup helpers shared by the
// tierstore commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/tierstore/tierstore/common"
	"github.com/tierstore/tierstore/httpserver"
)

// SetupLogger builds the process logger from the log-* flags.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJSONFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUIDFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server config from the server flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the blob API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var HotURIFlag = &cli.StringFlag{
	Name:  "hot-uri",
	Value: "memory://",
	Usage: "storage URI for the hot tier",
}

var ColdURIFlag = &cli.StringFlag{
	Name:     "cold-uri",
	Required: true,
	Usage:    "storage URI for the cold tier, e.g. s3://bucket/prefix?region=us-west-2 or file:///var/lib/tierstore",
}

var BackupURIFlag = &cli.StringFlag{
	Name:  "backup-uri",
	Value: "",
	Usage: "storage URI for the backup tier; empty reuses the cold tier",
}

var AccessThresholdFlag = &cli.Uint64Flag{
	Name:  "access-threshold",
	Value: 3,
	Usage: "access count that promotes content into the hot tier",
}

var HotTTLFlag = &cli.DurationFlag{
	Name:  "hot-ttl",
	Value: time.Hour,
	Usage: "idle period before hot content becomes a demotion candidate; access patterns expire at twice this",
}

var TieringIntervalFlag = &cli.DurationFlag{
	Name:  "tiering-interval",
	Value: time.Hour,
	Usage: "how often to run the tiering maintenance pass; 0 disables it",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
