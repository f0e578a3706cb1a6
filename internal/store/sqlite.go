/*
Package store holds the storage backends for the forecast table.

SQLiteStore is the durable backend. It owns the weather table exclusively;
nothing else in the process opens the database file.

SCHEMA:
  weather:   one row per normalized UTC date, UNIQUE (date) ON CONFLICT REPLACE
  sync_meta: single row with the time of the last committed ReplaceAll

  The schema is applied by versioned migrations embedded in the binary.
  Opening an existing database applies only missing migrations and never
  drops data.

ATOMICITY:
  ReplaceAll runs delete-all, bulk insert and the sync_meta stamp in one
  transaction. Any failure rolls the whole batch back.

CONCURRENCY:
  A sync.RWMutex serializes operations on the handle. Writers hold it for the
  whole transaction, so readers block until commit and never see a
  half-written table. Change notifications are published after the lock is
  released so subscribers can query again from inside their callback.

MemoryStore offers the same contract without persistence.
*/
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/forecast-cache/internal/common"
	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/weather"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const selectColumns = `SELECT date, weather_id, min, max, humidity, pressure, wind, degrees FROM weather`

// SQLiteStore implements weather.Store on a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	pub weather.ChangePublisher
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and brings its
// schema up to date. Use ":memory:" for a throwaway database. pub may be nil.
func OpenSQLite(path string, pub weather.ChangePublisher) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageError("open", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, storageError("migrate", err)
	}

	return newSQLiteStore(db, pub), nil
}

func newSQLiteStore(db *sql.DB, pub weather.ChangePublisher) *SQLiteStore {
	return &SQLiteStore{db: db, pub: pub, now: time.Now}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		logger.Debugf("store: schema at version %d (dirty=%t)", version, dirty)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceAll atomically replaces the table contents with records. A later
// record in the batch wins over an earlier one with the same date.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, records []weather.ForecastRecord) (int, error) {
	if err := weather.ValidateRecords(records); err != nil {
		return 0, err
	}

	s.mu.Lock()
	change, count, err := s.replaceAll(ctx, records)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	publish(s.pub, change)
	return count, nil
}

func (s *SQLiteStore) replaceAll(ctx context.Context, records []weather.ForecastRecord) (weather.Change, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return weather.Change{}, 0, storageError("begin", err)
	}
	defer tx.Rollback()

	before, err := selectDates(ctx, tx)
	if err != nil {
		return weather.Change{}, 0, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM weather"); err != nil {
		return weather.Change{}, 0, storageError("delete", err)
	}

	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO weather (date, weather_id, min, max, humidity, pressure, wind, degrees)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.Date, r.ConditionID, r.MinTemp, r.MaxTemp,
			r.Humidity, r.Pressure, r.WindSpeed, r.WindDirection,
		)
		if err != nil {
			return weather.Change{}, 0, storageError("insert", err)
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM weather").Scan(&count); err != nil {
		return weather.Change{}, 0, storageError("count", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_meta (id, last_replaced_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_replaced_at = excluded.last_replaced_at`,
		s.now().UnixMilli(),
	)
	if err != nil {
		return weather.Change{}, 0, storageError("stamp", err)
	}

	if err := tx.Commit(); err != nil {
		return weather.Change{}, 0, storageError("commit", err)
	}

	after := make([]int64, len(records))
	for i, r := range records {
		after[i] = r.Date
	}
	return weather.Change{Dates: unionDates(before, after)}, count, nil
}

// DeleteAll removes every row.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	change, n, err := s.deleteAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	publish(s.pub, change)
	return n, nil
}

func (s *SQLiteStore) deleteAll(ctx context.Context) (weather.Change, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return weather.Change{}, 0, storageError("begin", err)
	}
	defer tx.Rollback()

	before, err := selectDates(ctx, tx)
	if err != nil {
		return weather.Change{}, 0, err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM weather")
	if err != nil {
		return weather.Change{}, 0, storageError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return weather.Change{}, 0, storageError("delete", err)
	}

	if err := tx.Commit(); err != nil {
		return weather.Change{}, 0, storageError("commit", err)
	}
	return weather.Change{Dates: before}, int(n), nil
}

// Query returns the rows matching filter. All-rows queries must name an order.
func (s *SQLiteStore) Query(ctx context.Context, filter weather.Filter, order weather.SortOrder) (weather.ResultSet, error) {
	if err := filter.Validate(order); err != nil {
		return nil, err
	}

	query, args := buildQuery(filter, order)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	rs := weather.ResultSet{}
	for rows.Next() {
		var r weather.ForecastRecord
		if err := rows.Scan(
			&r.Date, &r.ConditionID, &r.MinTemp, &r.MaxTemp,
			&r.Humidity, &r.Pressure, &r.WindSpeed, &r.WindDirection,
		); err != nil {
			return nil, storageError("scan", err)
		}
		rs = append(rs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query", err)
	}
	return rs, nil
}

// LastReplaced returns when ReplaceAll last committed, or the zero time.
func (s *SQLiteStore) LastReplaced(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms int64
	err := s.db.QueryRowContext(ctx, "SELECT last_replaced_at FROM sync_meta WHERE id = 1").Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, storageError("query", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func buildQuery(filter weather.Filter, order weather.SortOrder) (string, []any) {
	if filter.Kind == weather.FilterExact {
		return selectColumns + " WHERE date = ?", []any{filter.Date}
	}

	query := selectColumns
	var args []any
	if filter.MinDate != nil {
		query += " WHERE date >= ?"
		args = append(args, *filter.MinDate)
	}
	// order was validated to be ASC or DESC.
	return query + " ORDER BY date " + string(order), args
}

func selectDates(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT date FROM weather")
	if err != nil {
		return nil, storageError("query", err)
	}
	defer rows.Close()

	var dates []int64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, storageError("scan", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("query", err)
	}
	return dates, nil
}

// Helper functions

func storageError(op string, err error) error {
	return &weather.StorageError{
		Op:          op,
		Err:         err,
		Unavailable: isUnavailable(err),
	}
}

func isUnavailable(err error) bool {
	return err != nil && common.HasAnyFold(err.Error(),
		"unable to open", "readonly", "read-only", "disk i/o", "database is locked",
		"disk is full", "no such table", "not a database", "malformed", "database is closed",
	)
}

func publish(pub weather.ChangePublisher, change weather.Change) {
	if pub == nil || change.Empty() {
		return
	}
	n := pub.Publish(change)
	logger.Debugf("store: change over %d dates delivered to %d subscribers", len(change.Dates), n)
}

func unionDates(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, list := range [][]int64{a, b} {
		for _, d := range list {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
