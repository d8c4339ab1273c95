package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"ai-chatflow-be/internal/bootstrap"
	"ai-chatflow-be/internal/config"
	"ai-chatflow-be/internal/pkg/logger"
	"ai-chatflow-be/internal/server"
	"ai-chatflow-be/internal/tracer"
	"ai-chatflow-be/pkg/database"
	"ai-chatflow-be/pkg/nats"

	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Tracer
	shutdownTracer := tracer.InitTracer(cfg.Otel)
	defer shutdownTracer(context.Background())

	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 3. Initialize Database
	gormDB, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 4. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg, sysLogger)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Background workers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return container.WebSocketHub.Run(gctx)
	})
	g.Go(func() error {
		return container.TitleConsumer.Consume(gctx)
	})
	if container.ActivitySubscriber != nil {
		g.Go(func() error {
			return container.ActivitySubscriber.Subscribe(gctx, nats.SubjectPrefix+">", "activity-log", container.ActivityService.Record)
		})
	}

	// 6. HTTP server
	srv := server.New(cfg, container)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Let pending assistant replies land before connections close.
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Ai.ReplyTimeout+5*time.Second)
		defer cancelDrain()
		return container.Orchestrator.Drain(drainCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Shutdown with error: %v", err)
	}
	log.Println("Server stopped")
}
