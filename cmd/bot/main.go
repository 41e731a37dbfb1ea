package main

import (
	"context"
	"flag"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
	"github.com/shrimpsizemoose/yogaroll/internal/bot"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	service, err := app.NewService(ctx, *configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to start: %v", err)
	}
	defer service.Close()

	b, err := bot.New(ctx, service)
	if err != nil {
		logger.Error.Fatalf("Failed to create bot: %v", err)
	}
	defer b.Close()

	logger.Info.Println("Bot initialized successfully")
	if err := b.Start(); err != nil {
		logger.Error.Fatalf("Bot error: %v", err)
	}
}
