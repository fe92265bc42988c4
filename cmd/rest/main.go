package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"studykit-be/internal/bootstrap"
	"studykit-be/internal/config"
	"studykit-be/internal/server"
	"studykit-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	// Tracing must be up before the server installs otelfiber.
	shutdownTracer, err := tracer.Init(cfg.Otel, "studykit-backend", cfg.App.Environment, container.Logger)
	if err != nil {
		container.Logger.Warn("TRACER", "Tracing disabled", map[string]interface{}{"error": err.Error()})
	}
	defer shutdownTracer(context.Background())

	// 3. Start Background Services
	// The reducer must be subscribed before the first run publishes.
	if err := container.ConsumerService.Consume(context.Background()); err != nil {
		log.Fatalf("Background Consumer Error: %v", err)
	}

	// 4. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	// 5. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
