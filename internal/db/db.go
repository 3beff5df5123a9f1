// Package db persists an append-only history of engine output for offline
// inspection and replay tooling. Per spec.md §6, the fusion core itself
// persists nothing ("Persisted state: none") — this package is ambient
// observability infrastructure sitting outside the core, grounded on
// db/db.go and internal/db/db.go in the teacher repo (same NewDB/pragma/
// migration shape, trimmed from the teacher's site/transit/lidar schema
// down to the two tables a fusion cycle history needs).
package db

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/avfusion/radar-fusion/internal/fusion/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the history database.
type DB struct {
	*sql.DB
	path string
}

// New opens (creating if needed) the sqlite database at path, applies the
// teacher's standard pragma set, and runs pending migrations to the latest
// version.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// applyPragmas sets the WAL/synchronous/busy-timeout triplet the teacher
// uses on every database regardless of how it was created.
func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("db: pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrationsSubFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

func (d *DB) migrateUp() error {
	sub, err := migrationsSubFS()
	if err != nil {
		return fmt.Errorf("db: migrations fs: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("db: iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(d.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("db: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("db: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// Note: we never call m.Close() — its sqlite driver Close() would close
	// the *sql.DB we manage separately, per the teacher's db/migrate.go.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[migrate] "+format, v...) }
func (migrateLogger) Verbose() bool                           { return false }

// RecordCycle appends one cycle's history: the cycle row plus one
// track_snapshots row per live slot (confirmed or not — the history is
// meant for offline inspection, so it is intentionally richer than the
// spec.md out-boundary's confirmed-only Snapshot). The cycle row's
// tracks_confirmed column likewise counts every live slot; confirmation is
// not checked here.
func (d *DB) RecordCycle(seq int64, tsUnixNanos int64, measurementsSeen int, diagnostics []engine.Diagnostic) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("db: begin: %w", err)
	}
	defer tx.Rollback()

	confirmed := 0
	for _, diag := range diagnostics {
		if diag.Live {
			confirmed++
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO cycles (seq, ts_unix_nanos, measurements_seen, tracks_confirmed) VALUES (?, ?, ?, ?)`,
		seq, tsUnixNanos, measurementsSeen, confirmed,
	); err != nil {
		return fmt.Errorf("db: insert cycle: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO track_snapshots (cycle_seq, id, x, y, vx, vy, lifetime, lost) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("db: prepare track insert: %w", err)
	}
	defer stmt.Close()

	for _, diag := range diagnostics {
		if !diag.Live {
			continue
		}
		if _, err := stmt.Exec(seq, diag.ID, diag.X, diag.Y, diag.VX, diag.VY, diag.Lifetime, diag.Lost); err != nil {
			return fmt.Errorf("db: insert track snapshot: %w", err)
		}
	}

	return tx.Commit()
}

// CycleRow is one row of the cycles table.
type CycleRow struct {
	Seq              int64 `json:"seq"`
	TsUnixNanos      int64 `json:"ts_unix_nanos"`
	MeasurementsSeen int   `json:"measurements_seen"`
	TracksConfirmed  int   `json:"tracks_confirmed"`
}

// RecentCycles returns the last limit cycles, most recent first.
func (d *DB) RecentCycles(limit int) ([]CycleRow, error) {
	rows, err := d.Query(
		`SELECT seq, ts_unix_nanos, measurements_seen, tracks_confirmed FROM cycles ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("db: query recent cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var r CycleRow
		if err := rows.Scan(&r.Seq, &r.TsUnixNanos, &r.MeasurementsSeen, &r.TracksConfirmed); err != nil {
			return nil, fmt.Errorf("db: scan cycle row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrackPoint is one historical sample of a single track's trajectory.
type TrackPoint struct {
	CycleSeq int64   `json:"cycle_seq"`
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	VX       float32 `json:"vx"`
	VY       float32 `json:"vy"`
}

// TrackHistory returns every recorded sample for the given track id,
// ordered by cycle — the feed for cmd/tools/plot-tracks and the debug
// trajectory chart in internal/api.
func (d *DB) TrackHistory(id int) ([]TrackPoint, error) {
	rows, err := d.Query(
		`SELECT cycle_seq, x, y, vx, vy FROM track_snapshots WHERE id = ? ORDER BY cycle_seq ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("db: query track history: %w", err)
	}
	defer rows.Close()

	var out []TrackPoint
	for rows.Next() {
		var p TrackPoint
		if err := rows.Scan(&p.CycleSeq, &p.X, &p.Y, &p.VX, &p.VY); err != nil {
			return nil, fmt.Errorf("db: scan track point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AttachAdminRoutes mounts a tsweb debug index plus a tailsql live-SQL
// browser over this database, mirroring the teacher's
// internal/db.(*DB).AttachAdminRoutes exactly (same RoutePrefix and
// tsweb.Debugger wiring), pointed at the fusion history db instead of the
// teacher's traffic-monitoring schema.
func (d *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("db: failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+d.path, d.DB, &tailsql.DBOptions{
		Label: "Fusion history DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("recent-cycles", "Last 100 fusion cycles (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		rows, err := d.RecentCycles(100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
}
