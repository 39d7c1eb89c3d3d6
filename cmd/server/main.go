package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"animalcensus/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	if runErr != nil {
		log.Printf("Census stopped: %v", runErr)
		stop()
		os.Exit(1)
	}
}
