package main

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"

	"github.com/PortNumber53/quote-autopost/db"
)

type fakeMigrator struct {
	upErr      error
	upCalls    int
	downCalls  int
	stepsCalls []int
	forceCalls []int
	version    uint
	dirty      bool
	versionErr error
}

func (f *fakeMigrator) Up() error                    { f.upCalls++; return f.upErr }
func (f *fakeMigrator) Down() error                  { f.downCalls++; return nil }
func (f *fakeMigrator) Steps(n int) error            { f.stepsCalls = append(f.stepsCalls, n); return nil }
func (f *fakeMigrator) Force(v int) error            { f.forceCalls = append(f.forceCalls, v); return nil }
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }

func testDeps(t *testing.T, fm *fakeMigrator) deps {
	t.Helper()
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return deps{
		loadEnv: func(...string) error { return nil },
		getenv: func(k string) string {
			if k == "database_url" {
				return "postgres://example"
			}
			return ""
		},
		openDB:      func(string, string) (*sql.DB, error) { return conn, nil },
		newMigrator: func(*sql.DB) (db.Migrator, error) { return fm, nil },
	}
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args []string
		want command
	}{
		{[]string{"up"}, command{name: "up"}},
		{[]string{"up", "2"}, command{name: "up", n: 2}},
		{[]string{"down", "1"}, command{name: "down", n: 1}},
		{[]string{"down", "all"}, command{name: "down"}},
		{[]string{"-database-url", "postgres://other", "status"}, command{name: "status", databaseURL: "postgres://other"}},
		{[]string{"pin", "0"}, command{name: "pin"}},
	}
	for _, tc := range cases {
		got, err := parseArgs(tc.args)
		if err != nil {
			t.Fatalf("parseArgs(%v): %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("parseArgs(%v) = %+v, want %+v", tc.args, got, tc.want)
		}
	}

	for _, bad := range [][]string{nil, {"sideways"}, {"down"}, {"up", "0"}, {"up", "x"}, {"pin"}, {"pin", "-1"}, {"status", "now"}, {"up", "1", "2"}} {
		if _, err := parseArgs(bad); err == nil {
			t.Fatalf("expected parseArgs(%v) to fail", bad)
		}
	}
}

func TestRun_MissingDatabaseURL(t *testing.T) {
	d := testDeps(t, &fakeMigrator{})
	d.getenv = func(string) string { return "" }
	d.openDB = func(string, string) (*sql.DB, error) {
		t.Fatalf("openDB should not be called")
		return nil, nil
	}
	if err := run([]string{"up"}, &bytes.Buffer{}, d); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_FlagOverridesEnvURL(t *testing.T) {
	d := testDeps(t, &fakeMigrator{version: 1})
	inner := d.openDB
	var gotURL string
	d.openDB = func(driver, url string) (*sql.DB, error) {
		gotURL = url
		return inner(driver, url)
	}
	if err := run([]string{"-database-url", "postgres://flag", "status"}, &bytes.Buffer{}, d); err != nil {
		t.Fatalf("run: %v", err)
	}
	if gotURL != "postgres://flag" {
		t.Fatalf("expected flag url, got %q", gotURL)
	}
}

func TestRun_UpAlreadyCurrent(t *testing.T) {
	fm := &fakeMigrator{upErr: migrate.ErrNoChange}
	var out bytes.Buffer
	if err := run([]string{"up"}, &out, testDeps(t, fm)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "schema already up to date\n" || fm.upCalls != 1 {
		t.Fatalf("unexpected out=%q calls=%d", out.String(), fm.upCalls)
	}
}

func TestRun_DownStepsReportsVersion(t *testing.T) {
	fm := &fakeMigrator{version: 1}
	var out bytes.Buffer
	if err := run([]string{"down", "2"}, &out, testDeps(t, fm)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "down ok: version 1\n" || len(fm.stepsCalls) != 1 || fm.stepsCalls[0] != -2 {
		t.Fatalf("unexpected out=%q steps=%v", out.String(), fm.stepsCalls)
	}
}

func TestRun_DownAll(t *testing.T) {
	fm := &fakeMigrator{versionErr: migrate.ErrNilVersion}
	var out bytes.Buffer
	if err := run([]string{"down", "all"}, &out, testDeps(t, fm)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if fm.downCalls != 1 || out.String() != "down ok: no migrations applied\n" {
		t.Fatalf("unexpected out=%q down=%d", out.String(), fm.downCalls)
	}
}

func TestRun_UpError(t *testing.T) {
	fm := &fakeMigrator{upErr: sql.ErrTxDone}
	if err := run([]string{"up"}, &bytes.Buffer{}, testDeps(t, fm)); err == nil || !strings.HasPrefix(err.Error(), "up: ") {
		t.Fatalf("expected wrapped up error, got %v", err)
	}
}

func TestRun_Status(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"status"}, &out, testDeps(t, &fakeMigrator{version: 1, dirty: true})); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "version 1 (dirty") {
		t.Fatalf("unexpected status %q", out.String())
	}
}

func TestRun_PinWritesVersionOnly(t *testing.T) {
	fm := &fakeMigrator{}
	var out bytes.Buffer
	if err := run([]string{"pin", "1"}, &out, testDeps(t, fm)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fm.forceCalls) != 1 || fm.forceCalls[0] != 1 || fm.upCalls != 0 || len(fm.stepsCalls) != 0 {
		t.Fatalf("unexpected force=%v up=%d steps=%v", fm.forceCalls, fm.upCalls, fm.stepsCalls)
	}
	if !strings.Contains(out.String(), "no SQL executed") {
		t.Fatalf("unexpected out %q", out.String())
	}
}

func TestRun_Repair(t *testing.T) {
	dirty := &fakeMigrator{version: 1, dirty: true}
	var out bytes.Buffer
	if err := run([]string{"repair"}, &out, testDeps(t, dirty)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "repaired: dirty flag cleared at version 1\n" {
		t.Fatalf("unexpected out %q", out.String())
	}

	out.Reset()
	clean := &fakeMigrator{version: 1}
	if err := run([]string{"repair"}, &out, testDeps(t, clean)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(clean.forceCalls) != 0 || out.String() != "nothing to repair: version 1\n" {
		t.Fatalf("unexpected out=%q force=%v", out.String(), clean.forceCalls)
	}
}

func TestRun_OpenDBError(t *testing.T) {
	d := testDeps(t, &fakeMigrator{})
	d.openDB = func(string, string) (*sql.DB, error) { return nil, sql.ErrConnDone }
	if err := run([]string{"status"}, &bytes.Buffer{}, d); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultDeps_NonNil(t *testing.T) {
	d := defaultDeps()
	if d.getenv == nil || d.openDB == nil || d.newMigrator == nil {
		t.Fatalf("expected default deps to be populated")
	}
}
