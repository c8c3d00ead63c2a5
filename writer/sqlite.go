package writer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bookflow/logger"
	"bookflow/models"
)

// SQLiteStore is a single-writer local store for development runs.
type SQLiteStore struct {
	db  *sql.DB
	d   dialect
	log *logger.Log
}

// NewSQLiteStore opens path in WAL mode and creates missing tables.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, d: sqliteDialect, log: logger.GetLogger()}
	for _, t := range []Table{TableNative, TableArchive} {
		if _, err := db.ExecContext(ctx, s.d.createTable(t)); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite schema %s: %w", t.Name(), err)
		}
	}

	s.log.WithComponent("sqlite_store").WithFields(logger.Fields{"path": path}).Info("sqlite store ready")
	return s, nil
}

func (s *SQLiteStore) LastMinute(ctx context.Context, table Table, symbol string) (time.Time, bool, error) {
	var ms sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.d.lastMinute(table), symbol).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("query last minute of %s/%s: %w", table.Name(), symbol, err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

func (s *SQLiteStore) WriteNativeDay(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) error {
	if err := checkSymbols(symbol, records, func(r *models.MinuteRecord) string { return r.Symbol }); err != nil {
		return err
	}
	return s.writeDay(ctx, TableNative, symbol, day, nativeRows(records))
}

func (s *SQLiteStore) WriteArchiveDay(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) error {
	if err := checkSymbols(symbol, records, func(r *models.ArchiveMinuteRecord) string { return r.Symbol }); err != nil {
		return err
	}
	return s.writeDay(ctx, TableArchive, symbol, day, archiveRows(records))
}

func (s *SQLiteStore) writeDay(ctx context.Context, table Table, symbol string, day time.Time, rows [][]any) error {
	start := time.Now()
	if err := s.execAll(ctx, s.d.upsert(table), rows); err != nil {
		return fmt.Errorf("write %s %s %s: %w", table.Name(), symbol, day.Format("2006-01-02"), err)
	}
	logger.LogPerformanceEntry(s.log.WithComponent("sqlite_store"), "sqlite_store", "write_day", time.Since(start), logger.Fields{
		"table":  table.Name(),
		"symbol": symbol,
		"day":    day.Format("2006-01-02"),
		"rows":   len(rows),
	})
	return nil
}

func (s *SQLiteStore) TickerGaps(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, s.d.tickerGaps(), symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query ticker gaps: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan ticker gaps: %w", err)
		}
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTicker(ctx context.Context, symbol string, rows []models.TickerMinute) error {
	args := make([][]any, len(rows))
	for i := range rows {
		args[i] = tickerUpdateArgs(symbol, &rows[i])
	}
	return s.execAll(ctx, s.d.updateTicker(), args)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execAll runs query once per argument row inside a single transaction.
func (s *SQLiteStore) execAll(ctx context.Context, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
