package writer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookflow/config"
	"bookflow/logger"
	"bookflow/models"
)

// PostgresStore writes minute records through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	d    dialect
	log  *logger.Log
}

// BuildConnString builds a PostgreSQL connection URL from config.
func BuildConnString(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode,
	)
}

// NewPostgresStore connects, pings and creates missing tables.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, d: postgresDialect, log: logger.GetLogger()}
	for _, t := range []Table{TableNative, TableArchive} {
		if _, err := pool.Exec(ctx, s.d.createTable(t)); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create table %s: %w", t.Name(), err)
		}
	}

	s.log.WithComponent("postgres_store").WithFields(logger.Fields{
		"host":      cfg.Host,
		"database":  cfg.Name,
		"max_conns": cfg.MaxConns,
	}).Info("postgres store ready")
	return s, nil
}

func (s *PostgresStore) LastMinute(ctx context.Context, table Table, symbol string) (time.Time, bool, error) {
	var ms *int64
	if err := s.pool.QueryRow(ctx, s.d.lastMinute(table), symbol).Scan(&ms); err != nil {
		return time.Time{}, false, fmt.Errorf("query last minute of %s/%s: %w", table.Name(), symbol, err)
	}
	if ms == nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(*ms).UTC(), true, nil
}

func (s *PostgresStore) WriteNativeDay(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) error {
	if err := checkSymbols(symbol, records, func(r *models.MinuteRecord) string { return r.Symbol }); err != nil {
		return err
	}
	return s.writeDay(ctx, TableNative, symbol, day, nativeRows(records))
}

func (s *PostgresStore) WriteArchiveDay(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) error {
	if err := checkSymbols(symbol, records, func(r *models.ArchiveMinuteRecord) string { return r.Symbol }); err != nil {
		return err
	}
	return s.writeDay(ctx, TableArchive, symbol, day, archiveRows(records))
}

// writeDay queues every row of one day into a batch inside one transaction.
func (s *PostgresStore) writeDay(ctx context.Context, table Table, symbol string, day time.Time, rows [][]any) error {
	start := time.Now()
	sql := s.d.upsert(table)

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, args := range rows {
			batch.Queue(sql, args...)
		}
		return execBatch(ctx, tx, batch, len(rows))
	})
	if err != nil {
		return fmt.Errorf("write %s %s %s: %w", table.Name(), symbol, day.Format("2006-01-02"), err)
	}

	logger.LogPerformanceEntry(s.log.WithComponent("postgres_store"), "postgres_store", "write_day", time.Since(start), logger.Fields{
		"table":  table.Name(),
		"symbol": symbol,
		"day":    day.Format("2006-01-02"),
		"rows":   len(rows),
	})
	return nil
}

func (s *PostgresStore) TickerGaps(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, s.d.tickerGaps(), symbol, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query ticker gaps: %w", err)
	}
	ms, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan ticker gaps: %w", err)
	}
	out := make([]time.Time, len(ms))
	for i, v := range ms {
		out[i] = time.UnixMilli(v).UTC()
	}
	return out, nil
}

func (s *PostgresStore) UpdateTicker(ctx context.Context, symbol string, rows []models.TickerMinute) error {
	if len(rows) == 0 {
		return nil
	}
	sql := s.d.updateTicker()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for i := range rows {
			batch.Queue(sql, tickerUpdateArgs(symbol, &rows[i])...)
		}
		return execBatch(ctx, tx, batch, len(rows))
	})
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return results.Close()
}
