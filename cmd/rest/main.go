package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"propman-be/internal/bootstrap"
	"propman-be/internal/config"
	"propman-be/internal/server"
	"propman-be/internal/tracer"
	"propman-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 45 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	var gormDB *gorm.DB
	if cfg.App.StoreDriver != "memory" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.IsProduction())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(gormDB, cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}
	sysLog := container.Logger

	shutdownTracer := tracer.InitTracer(cfg.Otel.Enabled, cfg.Otel.Endpoint, sysLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Start Background Services
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.WebSocketHub.Run(ctx)
		return nil
	})

	if err := container.ConsumerService.Consume(ctx); err != nil {
		sysLog.Error("MAIN", "Consumer failed to start", map[string]interface{}{"error": err.Error()})
	}

	if err := container.ReconcileJob.Start(); err != nil {
		log.Fatalf("Unable to schedule reconciliation: %v", err)
	}

	// 5. Run Server
	srv := server.New(cfg, container)
	g.Go(srv.Run)

	g.Go(func() error {
		<-ctx.Done()
		sysLog.Info("MAIN", "Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		<-container.ReconcileJob.Stop().Done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sysLog.Warn("MAIN", "HTTP shutdown incomplete", map[string]interface{}{"error": err.Error()})
		}
		if err := container.Close(shutdownCtx); err != nil {
			sysLog.Warn("MAIN", "Pending confirmations abandoned", map[string]interface{}{"error": err.Error()})
		}
		return shutdownTracer(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Server stopped: %v", err)
	}
}
