// Package writer persists minute records and answers the checkpoint queries
// the orchestrator resumes from.
package writer

import (
	"context"
	"fmt"
	"time"

	"bookflow/config"
	"bookflow/models"
)

// Table is a persisted record family.
type Table int

const (
	TableNative Table = iota
	TableArchive
)

// Name is the SQL table name.
func (t Table) Name() string {
	if t == TableArchive {
		return "binance_orderbook_1m"
	}
	return "bybit_orderbook_1m"
}

// Columns is the table's column contract, key columns first.
func (t Table) Columns() []models.Column {
	if t == TableArchive {
		return models.ArchiveColumns
	}
	return models.MinuteColumns
}

func (t Table) String() string { return t.Name() }

// RecordStore is the destination of committed days. Every day write is one
// transaction: either all of the day's rows are visible or none.
type RecordStore interface {
	// LastMinute returns the latest persisted minute for symbol.
	LastMinute(ctx context.Context, table Table, symbol string) (time.Time, bool, error)
	WriteNativeDay(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) error
	WriteArchiveDay(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) error
	// TickerGaps lists archive minutes in [from, to) whose depth columns are
	// set but whose ticker columns are NULL.
	TickerGaps(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error)
	// UpdateTicker overwrites only the ticker columns of existing rows.
	UpdateTicker(ctx context.Context, symbol string, rows []models.TickerMinute) error
	Close() error
}

// NewRecordStore opens the store selected by storage.database.driver.
func NewRecordStore(ctx context.Context, cfg *config.Config) (RecordStore, error) {
	switch cfg.Storage.Database.Driver {
	case "postgres":
		return NewPostgresStore(ctx, cfg.Storage.Database.Postgres)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Storage.Database.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Storage.Database.Driver)
	}
}

func nativeRows(records []models.MinuteRecord) [][]any {
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	return rows
}

func archiveRows(records []models.ArchiveMinuteRecord) [][]any {
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	return rows
}

// tickerUpdateArgs returns the SET values followed by the key.
func tickerUpdateArgs(symbol string, t *models.TickerMinute) []any {
	return append(t.TickerValues(), t.Timestamp.UnixMilli(), symbol)
}

func checkSymbols[T any](symbol string, rows []T, get func(*T) string) error {
	for i := range rows {
		if s := get(&rows[i]); s != symbol {
			return fmt.Errorf("record %d has symbol %q, expected %q", i, s, symbol)
		}
	}
	return nil
}
