package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookflow/logger"
)

// Backfill fills ticker columns that the daily ticker archives left NULL,
// using the monthly ticker archive. Only days up to the ticker cutoff are
// considered. Months are handled in order and stop is honored between them.
func (o *Orchestrator) Backfill(ctx context.Context, symbols []string) (BackfillSummary, error) {
	var sum BackfillSummary
	archive, ok := o.pipeline.(*ArchivePipeline)
	if !ok {
		return sum, fmt.Errorf("backfill is not supported for venue %s", o.pipeline.Venue())
	}

	from, to := archive.Range()
	end := o.endDay()
	if cutoff := archive.TickerCutoff(); !cutoff.IsZero() && cutoff.Before(end) {
		end = cutoff
	}
	if !to.IsZero() && to.Before(end) {
		end = to
	}

	var errs []error
	for _, symbol := range symbols {
		if o.stopping() || ctx.Err() != nil {
			break
		}
		if err := o.backfillSymbol(ctx, archive, symbol, from, end.AddDate(0, 0, 1), &sum); err != nil {
			o.log.WithComponent("backfill").WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("backfill failed")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return sum, errors.Join(errs...)
}

func (o *Orchestrator) backfillSymbol(ctx context.Context, archive *ArchivePipeline, symbol string, from, to time.Time, sum *BackfillSummary) error {
	log := o.log.WithComponent("backfill").WithFields(logger.Fields{"symbol": symbol})

	gaps, err := o.store.TickerGaps(ctx, symbol, from, to)
	if err != nil {
		return err
	}
	if len(gaps) == 0 {
		log.Info("no ticker gaps")
		return nil
	}
	sum.Gaps += len(gaps)

	months, byMonth := groupByMonth(gaps)
	for _, month := range months {
		if o.stopping() || ctx.Err() != nil {
			return nil
		}
		monthLog := log.WithFields(logger.Fields{"month": month.Format("2006-01"), "gaps": len(byMonth[month])})
		start := time.Now()

		rows, err := archive.BackfillMonth(ctx, symbol, month, byMonth[month])
		if err != nil {
			return fmt.Errorf("month %s: %w", month.Format("2006-01"), err)
		}
		if rows == nil {
			sum.Skipped++
			monthLog.Info("monthly ticker archive not published; skipped")
			continue
		}
		if err := o.store.UpdateTicker(ctx, symbol, rows); err != nil {
			return fmt.Errorf("month %s: %w", month.Format("2006-01"), err)
		}
		sum.Months++
		sum.Filled += len(rows)

		logger.LogPerformanceEntry(monthLog, "backfill", "month", time.Since(start), logger.Fields{
			"filled": len(rows),
		})
	}
	return nil
}

// groupByMonth buckets sorted minutes by calendar month, keeping month order.
func groupByMonth(minutes []time.Time) ([]time.Time, map[time.Time][]time.Time) {
	var months []time.Time
	byMonth := make(map[time.Time][]time.Time)
	for _, m := range minutes {
		m = m.UTC()
		key := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
		if _, ok := byMonth[key]; !ok {
			months = append(months, key)
		}
		byMonth[key] = append(byMonth[key], m)
	}
	return months, byMonth
}
