package main

import (
	"context"
	"flag"
	"net/http"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
	"github.com/shrimpsizemoose/yogaroll/internal/handlers"
)

func main() {
	var configPath = flag.String("config", "config.toml", "Path to config file")
	flag.Parse()

	service, err := app.NewService(context.Background(), *configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to start: %v", err)
	}
	defer service.Close()

	attendanceHandler := handlers.NewAttendanceHandler(service)

	logger.Info.Printf("Starting yogaroll server for %s on %s", service.Config.Studio.Name, service.Config.Server.Port)
	logger.Debug.Printf("Studio timezone: %s, today is %s", service.Config.Location(), service.Today().Format(service.Config.Display.DateFormat))
	if err := http.ListenAndServe(service.Config.Server.Port, attendanceHandler.Routes()); err != nil {
		logger.Error.Fatalf("yogaroll server failed: %v", err)
	}
}
