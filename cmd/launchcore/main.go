// cmd/launchcore/main.go
package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/vmelnikov/launchcore/internal/app"
	"github.com/vmelnikov/launchcore/internal/config"
	"github.com/vmelnikov/launchcore/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to initialize logger", zap.Error(err))
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting launch platform trading core")

	runner := app.NewRunner(cfg, log.Logger)
	if err := runner.Initialize(ctx); err != nil {
		log.Fatal("Failed to initialize trading core", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Trading core exited with error", zap.Error(err))
	}
}
