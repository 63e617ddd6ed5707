package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowqueue/rowq/internal/api"
	"github.com/rowqueue/rowq/internal/config"
	"github.com/rowqueue/rowq/internal/logging"
	"github.com/rowqueue/rowq/internal/queue/adapter"
	"github.com/rowqueue/rowq/internal/queue/monitor"
	"github.com/rowqueue/rowq/internal/queue/store"
	pgstore "github.com/rowqueue/rowq/internal/queue/store/postgres"
	litestore "github.com/rowqueue/rowq/internal/queue/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	var s store.Store
	switch cfg.Backend {
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.DBConnectionTimeout)
		defer cancel()

		pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			log.Error("pgxpool.New failed", "error", err)
			os.Exit(1)
		}
		if err := pool.Ping(connectCtx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
		pg := pgstore.New(pool)
		if err := pg.EnsureSchema(connectCtx); err != nil {
			log.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		s = pg

	case config.BackendSQLite:
		lite, err := litestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Error("sqlite open failed", "error", err)
			os.Exit(1)
		}
		s = lite
	}
	defer s.Close()

	queues := adapter.New(s, cfg.DefaultLease)

	mon := monitor.New(s, cfg.MonitorInterval, log)
	go mon.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpSrv := api.NewServer(addr, queues)

	log.Info("http server listening", "addr", addr, "backend", cfg.Backend)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	_ = httpSrv.Shutdown(context.Background())
}
