package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/db"
	"github.com/PortNumber53/quote-autopost/internal/autopost"
	"github.com/PortNumber53/quote-autopost/internal/config"
	"github.com/PortNumber53/quote-autopost/internal/handlers"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/middleware"
	"github.com/PortNumber53/quote-autopost/internal/quotecard"
	"github.com/PortNumber53/quote-autopost/internal/workers"
)

func main() {
	if err := run(defaultDeps()); err != nil {
		log.Fatal(err)
	}
}

type deps struct {
	loadConfig     func() (*config.Config, error)
	openDB         func(driverName, dataSourceName string) (*sql.DB, error)
	migrateUp      func(*sql.DB) (bool, error)
	listenAndServe func(*http.Server) error
	notify         func(chan<- os.Signal, ...os.Signal)
	stopCh         chan os.Signal
}

func defaultDeps() deps {
	return deps{
		loadConfig:     config.Load,
		openDB:         sql.Open,
		migrateUp:      db.MigrateUp,
		listenAndServe: func(s *http.Server) error { return s.ListenAndServe() },
		notify:         signal.Notify,
	}
}

func run(d deps) error {
	if d.loadConfig == nil || d.openDB == nil || d.migrateUp == nil || d.listenAndServe == nil {
		return fmt.Errorf("loadConfig, openDB, migrateUp and listenAndServe are required")
	}
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Root context for background workers and graceful shutdown
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := d.openDB("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()
	if err := conn.PingContext(rootCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	changed, err := d.migrateUp(conn)
	if err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logger.Info("database_ready", zap.Bool("migrated", changed))

	router, runner := buildApp(conn, cfg, logger)
	startWorkersIfEnabled(rootCtx, conn, cfg, runner, logger)

	srv := &http.Server{
		Handler:      withCORS(router),
		Addr:         ":" + cfg.Port,
		WriteTimeout: 3 * time.Minute,
		ReadTimeout:  15 * time.Second,
	}

	// Handle graceful shutdown on SIGINT/SIGTERM
	stop := d.stopCh
	if stop == nil {
		stop = make(chan os.Signal, 1)
	}
	if d.notify != nil {
		d.notify(stop, os.Interrupt, syscall.SIGTERM)
	}
	go func() {
		select {
		case <-stop:
		case <-rootCtx.Done():
			return
		}
		logger.Info("shutting_down")
		cancel()
		ctx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown_error", zap.Error(err))
		}
	}()

	logger.Info("server_starting", zap.String("port", cfg.Port))
	if err := d.listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server_stopped")
	return nil
}

// startWorkersIfEnabled launches the scheduled autopost worker and the stale-claim reaper.
func startWorkersIfEnabled(ctx context.Context, conn *sql.DB, cfg *config.Config, runner *autopost.Runner, logger *zap.Logger) {
	if !cfg.WorkerEnabled {
		logger.Info("worker_disabled", zap.String("env", "AUTOPOST_WORKER_ENABLED"))
		return
	}
	w := &autopost.Worker{Runner: runner, Interval: cfg.WorkerInterval, Logger: logger}
	go w.Start(ctx)
	reaper := &workers.ProcessingReaper{
		Queue:      autopost.Store{DB: conn, Logger: logger},
		Recorder:   autopost.Recorder{DB: conn, Logger: logger},
		Logger:     logger,
		StaleAfter: cfg.StaleAfter,
	}
	go reaper.Start(ctx)
}

// buildApp wires the router and the runner. The runner fetches quote-card images through the
// same router, so they never leave the process.
func buildApp(conn *sql.DB, cfg *config.Config, logger *zap.Logger) (*mux.Router, *autopost.Runner) {
	r := mux.NewRouter()
	runner := autopost.NewRunner(conn, cfg, logger, r)
	h := handlers.New(runner, autopost.Store{DB: conn, Logger: logger}, &quotecard.Renderer{}, logger)
	handlers.RegisterRoutes(h, r, middleware.NewAdminAuth(cfg.AdminJWTSecret).Middleware)
	return r, runner
}

func withCORS(h http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(h)
}
