// Command migrate manages the schema of the autopost database.
//
//	migrate [-database-url URL] up [N]      apply N pending migrations (all when N is omitted)
//	migrate [-database-url URL] down N      roll back N migrations
//	migrate [-database-url URL] down all    roll back everything
//	migrate [-database-url URL] status      print the current version
//	migrate [-database-url URL] repair      clear the dirty flag left by a failed migration
//	migrate [-database-url URL] pin V       record version V without running any SQL
//
// DATABASE_URL is read from the environment (or .env) when -database-url is not given.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PortNumber53/quote-autopost/db"
	"github.com/PortNumber53/quote-autopost/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, defaultDeps()); err != nil {
		log.Fatal(err)
	}
}

type deps struct {
	loadEnv     func(...string) error
	getenv      func(string) string
	openDB      func(driverName, dataSourceName string) (*sql.DB, error)
	newMigrator func(*sql.DB) (db.Migrator, error)
}

func defaultDeps() deps {
	return deps{
		loadEnv:     godotenv.Load,
		getenv:      config.NewEnv().GetString,
		openDB:      sql.Open,
		newMigrator: db.NewMigrator,
	}
}

// command is one parsed invocation. n is a step count for up/down (0 = all) or the version for pin.
type command struct {
	name        string
	n           int
	databaseURL string
}

func parseArgs(args []string) (command, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var c command
	fs.StringVar(&c.databaseURL, "database-url", "", "Postgres connection string (overrides DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return command{}, errors.New("missing command: one of up, down, status, repair, pin")
	}
	c.name = rest[0]
	arg := ""
	if len(rest) > 1 {
		arg = rest[1]
	}
	if len(rest) > 2 {
		return command{}, fmt.Errorf("%s: unexpected arguments %v", c.name, rest[2:])
	}

	switch c.name {
	case "status", "repair":
		if arg != "" {
			return command{}, fmt.Errorf("%s takes no argument", c.name)
		}
	case "up":
		if arg != "" {
			n, err := positive(arg)
			if err != nil {
				return command{}, fmt.Errorf("up: %w", err)
			}
			c.n = n
		}
	case "down":
		// Rolling everything back has to be asked for by name.
		switch arg {
		case "":
			return command{}, errors.New("down needs a step count or \"all\"")
		case "all":
		default:
			n, err := positive(arg)
			if err != nil {
				return command{}, fmt.Errorf("down: %w", err)
			}
			c.n = n
		}
	case "pin":
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 {
			return command{}, fmt.Errorf("pin needs a version number, got %q", arg)
		}
		c.n = v
	default:
		return command{}, fmt.Errorf("unknown command %q", c.name)
	}
	return c, nil
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("step count must be a positive integer, got %q", s)
	}
	return n, nil
}

func run(args []string, out io.Writer, d deps) error {
	c, err := parseArgs(args)
	if err != nil {
		return err
	}
	if d.loadEnv != nil {
		_ = d.loadEnv()
	}
	databaseURL := strings.TrimSpace(c.databaseURL)
	if databaseURL == "" && d.getenv != nil {
		databaseURL = strings.TrimSpace(d.getenv("database_url"))
	}
	if databaseURL == "" {
		return errors.New("no database: set DATABASE_URL or pass -database-url")
	}

	conn, err := d.openDB("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	m, err := d.newMigrator(conn)
	if err != nil {
		return err
	}

	switch c.name {
	case "status":
		st, err := db.ReadState(m)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, describe(st))
		return nil
	case "repair":
		st, repaired, err := db.Repair(m)
		if err != nil {
			return err
		}
		if !repaired {
			fmt.Fprintf(out, "nothing to repair: %s\n", describe(st))
			return nil
		}
		fmt.Fprintf(out, "repaired: dirty flag cleared at version %d\n", st.Version)
		return nil
	case "pin":
		if err := m.Force(c.n); err != nil {
			return fmt.Errorf("pin version %d: %w", c.n, err)
		}
		fmt.Fprintf(out, "pinned schema to version %d (no SQL executed)\n", c.n)
		return nil
	}

	err = db.Apply(m, c.name, c.n)
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(out, "schema already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	st, err := db.ReadState(m)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s ok: %s\n", c.name, describe(st))
	return nil
}

func describe(st db.State) string {
	switch {
	case st.Fresh:
		return "no migrations applied"
	case st.Dirty:
		return fmt.Sprintf("version %d (dirty, run \"migrate repair\" after fixing the failed migration)", st.Version)
	default:
		return fmt.Sprintf("version %d", st.Version)
	}
}
