package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/shutterhaus/drivesync/internal/app"
	"github.com/shutterhaus/drivesync/internal/config"
	"github.com/shutterhaus/drivesync/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, logging.FormatJSON, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	application, err := app.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialise application", slog.Any("error", err))
		os.Exit(1)
	}
	defer application.Close()

	lambda.Start(application.HandleRequest)
}
