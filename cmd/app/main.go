package main

import (
	"context"
	"flag"
	"os"

	"EnerCast/internal/di"
	"EnerCast/pkg/config"
	applogger "EnerCast/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	boot, err := applogger.New(&applogger.Config{Level: "info", Format: "json", Output: "stdout"})
	if err != nil {
		boot = applogger.Nop()
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		os.Exit(1)
	}
	boot.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.String("backend", cfg.Backend.Type),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	// Run blocks until SIGINT/SIGTERM.
	runErr := app.Run(context.Background())
	cleanup()
	if runErr != nil {
		boot.Error("app error", applogger.Error(runErr))
		os.Exit(1)
	}
}
