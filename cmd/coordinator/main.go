package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/config"
	"github.com/YusufTuran34/ContentOrganizerEvent/coordinator"
	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
	"github.com/YusufTuran34/ContentOrganizerEvent/dispatch"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/memory"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/nats"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/postgres"
	"github.com/YusufTuran34/ContentOrganizerEvent/infra/redis"
	"github.com/YusufTuran34/ContentOrganizerEvent/messagebus"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Create a context that we can cancel on shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// --- Dependency Injection ---

	var store aggregate.Store
	var deadletters deadletter.Log
	if cfg.PostgresDSN != "" {
		db, err := postgres.NewDB(cfg.PostgresDSN)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("Database connection established")
		store = postgres.NewStore(db).WithDedupWindow(cfg.DedupWindow)
		deadletters = postgres.NewDeadLetterLog(db)
	} else {
		slog.Info("No POSTGRES_DSN set, using in-memory aggregate store")
		store = memory.NewStore(memory.WithDedupWindow(cfg.DedupWindow))
		deadletters = deadletter.NewMemoryLog()
	}

	var broker messagebus.Broker
	switch {
	case cfg.NATSURL != "":
		broker, err = nats.NewBroker(cfg.NATSURL)
		if err != nil {
			slog.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		slog.Info("NATS connection established")
	case cfg.RedisAddr != "":
		broker, err = redis.NewBroker(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("Redis connection established")
	default:
		slog.Info("No NATS_URL or REDIS_ADDR set, using in-process broker")
		broker = memory.NewBroker()
	}
	defer broker.Close()

	// --- Framework Components ---

	coord := coordinator.New(store, broker, deadletters,
		coordinator.WithMaxPublishElapsedTime(cfg.PublishMaxElapsed),
		coordinator.WithMaxPublishTries(uint(cfg.PublishMaxTries)),
	)

	dispatcher := dispatch.New(broker, store, coord, deadletters, cfg.SubscriberID)
	if err := dispatcher.Start(ctx); err != nil {
		slog.Error("Failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	sweeper := coordinator.NewSweeper(store, deadletters, coordinator.SweeperConfig{
		StallAfter: cfg.StallAfter,
		FailAfter:  cfg.FailAfter,
		Retention:  cfg.Retention,
		Interval:   cfg.SweepInterval,
	})
	sweeper.Start(ctx)

	reconciler := coordinator.NewReconciler(coord, store, cfg.ReconcileInterval)
	reconciler.Start(ctx)

	slog.Info("Pipeline coordinator running", "service", cfg.ServiceName)

	// Wait for shutdown signal, then drain the background workers.
	<-ctx.Done()
	slog.Info("Shutdown signal received, draining workers")
	sweeper.Stop()
	reconciler.Stop()
	slog.Info("Exiting")
}
