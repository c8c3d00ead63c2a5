package ingest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"bookflow/config"
	"bookflow/internal/symbols"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/processor"
	"bookflow/reader"
	"bookflow/reader/binance"
	"bookflow/reader/bybit"
	"bookflow/writer"
)

// DayBatch is the in-memory result of one (symbol, day) before commit.
type DayBatch struct {
	Symbol       string
	Day          time.Time
	NotPublished bool

	Native  []models.MinuteRecord
	Archive []models.ArchiveMinuteRecord

	Crossed int64
	Bytes   int64
}

// Len is the number of minute records in the batch.
func (b *DayBatch) Len() int {
	return len(b.Native) + len(b.Archive)
}

// Exporter receives every committed day. *writer.ParquetExporter satisfies it.
type Exporter interface {
	ExportNative(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) (string, error)
	ExportArchive(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) (string, error)
}

// Pipeline is the venue-specific part of the day loop: where archives live,
// how they decode and which table they land in.
type Pipeline interface {
	Venue() string
	Table() writer.Table
	// Range is the configured day window; a zero end means "up to yesterday".
	Range() (start, end time.Time)
	// Build fetches, decodes and aggregates one day. It reports progress
	// through track and never touches the store.
	Build(ctx context.Context, symbol string, day time.Time, track func(State)) (*DayBatch, error)
	Persist(ctx context.Context, store writer.RecordStore, b *DayBatch) error
	Export(ctx context.Context, exp Exporter, b *DayBatch) (string, error)
}

func parseRange(prefix, start, end string) (time.Time, time.Time, error) {
	s, err := config.ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s.start_date: %w", prefix, err)
	}
	e, err := config.ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s.end_date: %w", prefix, err)
	}
	return s, e, nil
}

// NativePipeline rebuilds full books from the snapshot+delta archives.
type NativePipeline struct {
	fetcher     reader.Fetcher
	template    string
	depthLevels int
	start, end  time.Time
	log         *logger.Log
}

func NewNativePipeline(cfg *config.Config, fetcher reader.Fetcher) (*NativePipeline, error) {
	start, end, err := parseRange("source.bybit", cfg.Source.Bybit.StartDate, cfg.Source.Bybit.EndDate)
	if err != nil {
		return nil, err
	}
	return &NativePipeline{
		fetcher:     fetcher,
		template:    cfg.Source.Bybit.PathTemplate,
		depthLevels: cfg.Ingest.DepthLevels,
		start:       start,
		end:         end,
		log:         logger.GetLogger(),
	}, nil
}

func (p *NativePipeline) Venue() string { return symbols.Bybit }
func (p *NativePipeline) Table() writer.Table { return writer.TableNative }
func (p *NativePipeline) Range() (time.Time, time.Time) { return p.start, p.end }

func (p *NativePipeline) Build(ctx context.Context, symbol string, day time.Time, track func(State)) (*DayBatch, error) {
	batch := &DayBatch{Symbol: symbol, Day: day}
	key := reader.ExpandKey(p.template, symbols.ForVenue(symbols.Bybit, symbol), day)

	track(FetchingDay)
	archive, err := p.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	if archive.Status == reader.NotPublished {
		batch.NotPublished = true
		return batch, nil
	}
	batch.Bytes = archive.Size()

	track(Decoding)
	agg := processor.NewMinuteAggregator(symbol, p.depthLevels)
	agg.Window(day, day.AddDate(0, 0, 1))
	stats, err := bybit.Decode(archive, func(msg models.BookMessage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		agg.Apply(msg)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	track(Aggregating)
	batch.Native = agg.Finish()
	batch.Crossed = agg.Crossed()
	if err := agg.Err(); err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", key, err)
	}

	p.log.WithComponent("native_pipeline").WithFields(logger.Fields{
		"symbol":   symbol,
		"day":      day.Format("2006-01-02"),
		"lines":    stats.Lines,
		"messages": stats.Messages,
		"skipped":  stats.Skipped,
		"outside":  agg.OutOfWindow(),
		"crossed":  batch.Crossed,
		"records":  len(batch.Native),
	}).Debug("day aggregated")
	return batch, nil
}

func (p *NativePipeline) Persist(ctx context.Context, store writer.RecordStore, b *DayBatch) error {
	return store.WriteNativeDay(ctx, b.Symbol, b.Day, b.Native)
}

func (p *NativePipeline) Export(ctx context.Context, exp Exporter, b *DayBatch) (string, error) {
	return exp.ExportNative(ctx, b.Symbol, b.Day, b.Native)
}

// ArchivePipeline merges the pre-aggregated depth and ticker archives.
type ArchivePipeline struct {
	fetcher         reader.Fetcher
	depthTemplate   string
	tickerTemplate  string
	monthlyTemplate string
	cutoff          time.Time
	start, end      time.Time
	log             *logger.Log
}

func NewArchivePipeline(cfg *config.Config, fetcher reader.Fetcher) (*ArchivePipeline, error) {
	src := cfg.Source.Binance
	start, end, err := parseRange("source.binance", src.StartDate, src.EndDate)
	if err != nil {
		return nil, err
	}
	cutoff, err := config.ParseDate(src.TickerCutoff)
	if err != nil {
		return nil, fmt.Errorf("source.binance.ticker_cutoff: %w", err)
	}
	return &ArchivePipeline{
		fetcher:         fetcher,
		depthTemplate:   src.DepthTemplate,
		tickerTemplate:  src.TickerTemplate,
		monthlyTemplate: src.TickerMonthlyTemplate,
		cutoff:          cutoff,
		start:           start,
		end:             end,
		log:             logger.GetLogger(),
	}, nil
}

func (p *ArchivePipeline) Venue() string { return symbols.Binance }
func (p *ArchivePipeline) Table() writer.Table { return writer.TableArchive }
func (p *ArchivePipeline) Range() (time.Time, time.Time) { return p.start, p.end }

// TickerCutoff is the last day with a published ticker feed; zero means none.
func (p *ArchivePipeline) TickerCutoff() time.Time { return p.cutoff }

func (p *ArchivePipeline) hasTicker(day time.Time) bool {
	return p.cutoff.IsZero() || !day.After(p.cutoff)
}

func (p *ArchivePipeline) Build(ctx context.Context, symbol string, day time.Time, track func(State)) (*DayBatch, error) {
	batch := &DayBatch{Symbol: symbol, Day: day}
	venueSymbol := symbols.ForVenue(symbols.Binance, symbol)

	track(FetchingDay)
	var depthArc, tickerArc *reader.Archive
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := p.fetcher.Fetch(gctx, reader.ExpandKey(p.depthTemplate, venueSymbol, day))
		depthArc = a
		return err
	})
	if p.hasTicker(day) {
		g.Go(func() error {
			a, err := p.fetcher.Fetch(gctx, reader.ExpandKey(p.tickerTemplate, venueSymbol, day))
			tickerArc = a
			return err
		})
	}
	err := g.Wait()
	defer depthArc.Close()
	defer tickerArc.Close()
	if err != nil {
		return nil, err
	}

	depthOK := depthArc != nil && depthArc.Status == reader.Published
	tickerOK := tickerArc != nil && tickerArc.Status == reader.Published
	if !depthOK && !tickerOK {
		batch.NotPublished = true
		return batch, nil
	}

	track(Decoding)
	fields := logger.Fields{"symbol": symbol, "day": day.Format("2006-01-02")}
	inDay := dayFilter(day)

	var depth []models.DepthMinute
	if depthOK {
		batch.Bytes += depthArc.Size()
		agg := processor.NewDepthAggregator(symbol)
		var outside int
		stats, err := binance.DecodeDepth(depthArc, func(s models.DepthSnapshot) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !inDay(s.Timestamp) {
				outside++
				return nil
			}
			agg.Add(s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", depthArc.Key, err)
		}
		depth = agg.Finish()
		fields["depth_rows"] = stats.Rows
		fields["depth_skipped"] = stats.Skipped
		fields["depth_outside"] = outside
	}

	var ticker []models.TickerMinute
	if tickerOK {
		batch.Bytes += tickerArc.Size()
		agg := processor.NewTickerAggregator(symbol)
		stats, outside, err := decodeTicker(ctx, tickerArc, agg, inDay)
		if err != nil {
			return nil, err
		}
		fields["ticker_outside"] = outside
		ticker = agg.Finish()
		batch.Crossed = agg.Invalid()
		fields["ticker_rows"] = stats.Rows
		fields["ticker_skipped"] = stats.Skipped
	}

	track(Aggregating)
	batch.Archive = processor.Merge(symbol, depth, ticker)

	fields["records"] = len(batch.Archive)
	fields["depth_published"] = depthOK
	fields["ticker_published"] = tickerOK
	p.log.WithComponent("archive_pipeline").WithFields(fields).Debug("day aggregated")
	return batch, nil
}

// BackfillMonth aggregates the monthly ticker archive, restricted to minutes.
// A nil result with no error means the month is not published.
func (p *ArchivePipeline) BackfillMonth(ctx context.Context, symbol string, month time.Time, minutes []time.Time) ([]models.TickerMinute, error) {
	key := reader.ExpandKey(p.monthlyTemplate, symbols.ForVenue(symbols.Binance, symbol), month)
	archive, err := p.fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defer archive.Close()
	if archive.Status == reader.NotPublished {
		return nil, nil
	}

	agg := processor.NewTickerAggregator(symbol)
	agg.Filter(minutes)
	if _, _, err := decodeTicker(ctx, archive, agg, nil); err != nil {
		return nil, err
	}
	rows := agg.Finish()
	if rows == nil {
		rows = []models.TickerMinute{}
	}
	return rows, nil
}

// decodeTicker feeds archive into agg. When keep is set, ticks it rejects
// are dropped and counted.
func decodeTicker(ctx context.Context, archive *reader.Archive, agg *processor.TickerAggregator, keep func(time.Time) bool) (binance.DecodeStats, int, error) {
	var outside int
	stats, err := binance.DecodeTicker(archive, func(row models.TickerRow) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if keep != nil && !keep(row.TransactionTime) {
			outside++
			return nil
		}
		agg.Add(row)
		return nil
	})
	if err != nil {
		return stats, outside, fmt.Errorf("decode %s: %w", archive.Key, err)
	}
	return stats, outside, nil
}

// dayFilter reports whether a timestamp falls in [day, day+1).
func dayFilter(day time.Time) func(time.Time) bool {
	next := day.AddDate(0, 0, 1)
	return func(t time.Time) bool {
		return !t.Before(day) && t.Before(next)
	}
}

func (p *ArchivePipeline) Persist(ctx context.Context, store writer.RecordStore, b *DayBatch) error {
	return store.WriteArchiveDay(ctx, b.Symbol, b.Day, b.Archive)
}

func (p *ArchivePipeline) Export(ctx context.Context, exp Exporter, b *DayBatch) (string, error) {
	return exp.ExportArchive(ctx, b.Symbol, b.Day, b.Archive)
}
