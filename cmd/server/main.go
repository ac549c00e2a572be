// Package main is the entry point for the API server process.
//
// The API server accepts code submissions over HTTP, persists the initial job
// record, publishes the job to the durable queue, answers status polls, and
// receives status callbacks from workers.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/alapanbagchi/Code-Visualizer/config"
	"github.com/alapanbagchi/Code-Visualizer/logger"
	"github.com/alapanbagchi/Code-Visualizer/queue"
	"github.com/alapanbagchi/Code-Visualizer/server"
	"github.com/alapanbagchi/Code-Visualizer/store"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			newPool,
			newStore,
			newQueueClient,
			newServer,
		),

		fx.Invoke(run),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newPool(lc fx.Lifecycle, cfg *config.Config) (*pgxpool.Pool, error) {
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

	return pool, nil
}

func newStore(pool *pgxpool.Pool) (*store.Store, error) {
	s := store.New(pool)
	if err := s.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func newQueueClient(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*queue.Client, error) {
	client := queue.NewClient(log, cfg.Broker.URL, cfg.Broker.Queue)

	// Connection-establishment failure at startup is fatal: an API server
	// that cannot enqueue has no useful work to do.
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

func newServer(log *zap.Logger, s *store.Store, q *queue.Client) *server.Server {
	return server.New(log, s, q)
}

func run(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, srv *server.Server) {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: srv.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return err
			}
			log.Info("API server listening", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
					log.Error("API server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
