// Command autopost runs one autopost invocation and prints the outcome as JSON. Without -force it
// honours the configured trigger time, which makes it safe to call from cron every minute.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/PortNumber53/quote-autopost/internal/autopost"
	"github.com/PortNumber53/quote-autopost/internal/config"
	"github.com/PortNumber53/quote-autopost/internal/handlers"
	"github.com/PortNumber53/quote-autopost/internal/logging"
	"github.com/PortNumber53/quote-autopost/internal/quotecard"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, defaultDeps()); err != nil {
		log.Fatal(err)
	}
}

type options struct {
	force    bool
	platform string
	baseURL  string
	timeout  time.Duration
}

func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("autopost", flag.ContinueOnError)
	var o options
	fs.BoolVar(&o.force, "force", false, "Bypass the trigger-time gate")
	fs.StringVar(&o.platform, "platform", "", "Restrict the run to one platform (x, bluesky, threads, instagram, facebook, pinterest)")
	fs.StringVar(&o.baseURL, "base-url", "", "Public site origin for quote links and card images")
	fs.DurationVar(&o.timeout, "timeout", 5*time.Minute, "Overall deadline for the run")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.timeout <= 0 {
		return options{}, fmt.Errorf("timeout must be positive")
	}
	return o, nil
}

// runner is the part of *autopost.Runner the command drives.
type runner interface {
	RunWithOptions(ctx context.Context, opts autopost.Options) (autopost.Result, error)
	RunScheduled(ctx context.Context, now time.Time, baseSiteURL string) ([]autopost.Result, error)
}

type deps struct {
	loadConfig func() (*config.Config, error)
	openDB     func(driverName, dataSourceName string) (*sql.DB, error)
	newRunner  func(conn *sql.DB, cfg *config.Config, logger *zap.Logger) runner
	now        func() time.Time
}

func defaultDeps() deps {
	return deps{
		loadConfig: config.Load,
		openDB:     sql.Open,
		newRunner:  newRunner,
		now:        time.Now,
	}
}

// newRunner wires a runner whose quote-card fetches are served by an in-process router.
func newRunner(conn *sql.DB, cfg *config.Config, logger *zap.Logger) runner {
	r := mux.NewRouter()
	h := handlers.New(nil, autopost.Store{DB: conn, Logger: logger}, &quotecard.Renderer{}, logger)
	handlers.RegisterRoutes(h, r, nil)
	return autopost.NewRunner(conn, cfg, logger, r)
}

func run(ctx context.Context, args []string, out io.Writer, d deps) error {
	o, err := parseArgs(args)
	if err != nil {
		return err
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

	conn, err := d.openDB("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	r := d.newRunner(conn, cfg, logger)
	var results []autopost.Result
	if o.force || o.platform != "" {
		res, runErr := r.RunWithOptions(ctx, autopost.Options{Force: o.force, Platform: o.platform, BaseSiteURL: o.baseURL, Now: d.now()})
		results, err = []autopost.Result{res}, runErr
	} else {
		results, err = r.RunScheduled(ctx, d.now(), o.baseURL)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(results); encErr != nil {
		return fmt.Errorf("write results: %w", encErr)
	}
	return err
}
