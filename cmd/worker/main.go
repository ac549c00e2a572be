// Package main is the entry point for the worker process.
//
// A worker consumes jobs from the durable queue one at a time (prefetch 1),
// executes each submission in an isolated container, evaluates the outcome
// against the optional expected output, and reports status transitions back
// to the job record store, either through the API server's callback or
// directly to the database depending on configuration.
package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/config"
	"github.com/alapanbagchi/Code-Visualizer/logger"
	"github.com/alapanbagchi/Code-Visualizer/queue"
	"github.com/alapanbagchi/Code-Visualizer/report"
	"github.com/alapanbagchi/Code-Visualizer/sandbox"
	"github.com/alapanbagchi/Code-Visualizer/store"
	"github.com/alapanbagchi/Code-Visualizer/worker"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			newExecutor,
			newEmbedder,
			newReporter,
			newQueueClient,
			newWorker,
		),

		fx.Invoke(consume),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newExecutor(cfg *config.Config, log *zap.Logger) sandbox.Executor {
	return sandbox.NewContainerExecutor(log, &sandbox.Config{
		Runtime:    cfg.Sandbox.Runtime,
		Image:      cfg.Sandbox.Image,
		TimeoutSec: cfg.Sandbox.TimeoutSec,
		MemoryMB:   cfg.Sandbox.MemoryMB,
		CPUs:       cfg.Sandbox.CPUs,
	})
}

func newEmbedder(cfg *config.Config, log *zap.Logger) worker.Embedder {
	if !cfg.Embeddings.Enabled {
		return nil
	}
	return sandbox.NewEmbeddingRunner(log, &sandbox.EmbeddingsConfig{
		Runtime:      cfg.Sandbox.Runtime,
		Image:        cfg.Embeddings.Image,
		QdrantURL:    cfg.Embeddings.QdrantURL,
		QdrantPort:   cfg.Embeddings.QdrantPort,
		QdrantAPIKey: cfg.Embeddings.QdrantAPIKey,
	})
}

func newReporter(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (report.Reporter, error) {
	switch cfg.Worker.ReportMode {
	case "direct":
		pool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		return report.NewStoreReporter(log, store.New(pool)), nil
	default:
		return report.NewAPIReporter(log, cfg.Worker.APIURL), nil
	}
}

func newQueueClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*queue.Client, error) {
	client := queue.NewClient(log, cfg.Broker.URL, cfg.Broker.Queue)

	// Connection-establishment failure at startup is fatal: a worker with
	// no broker connectivity has no useful work to do.
	if err := client.Connect(context.Background()); err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

func newWorker(log *zap.Logger, executor sandbox.Executor, reporter report.Reporter, embedder worker.Embedder) *worker.Worker {
	return worker.New(log, executor, reporter, embedder)
}

func consume(lc fx.Lifecycle, log *zap.Logger, client *queue.Client, w *worker.Worker) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := client.Consume(ctx, w.Handle); err != nil {
				return err
			}
			log.Info("worker listening for jobs")
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
