// Package ingest drives the day loop: it resolves where each symbol resumes,
// builds days on a bounded worker pool and commits them one at a time in
// chronological order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
	"bookflow/writer"
)

// Options configures an Orchestrator.
type Options struct {
	// Workers bounds how many days of one symbol are in memory at once.
	Workers         int
	ForceFullReload bool
	Exporter        Exporter
	Metrics         *metrics.Metrics
	// Now overrides the clock used to find "yesterday".
	Now func() time.Time
}

// Orchestrator runs one venue's pipeline over a set of symbols.
type Orchestrator struct {
	pipeline Pipeline
	store    writer.RecordStore
	exporter Exporter
	metrics  *metrics.Metrics

	workers   int
	forceFull bool
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once

	log *logger.Log
}

func NewOrchestrator(p Pipeline, store writer.RecordStore, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		pipeline:  p,
		store:     store,
		exporter:  opts.Exporter,
		metrics:   opts.Metrics,
		workers:   opts.Workers,
		forceFull: opts.ForceFullReload,
		now:       opts.Now,
		stopCh:    make(chan struct{}),
		log:       logger.GetLogger(),
	}
}

// Stop asks the run to finish at the next day boundary. Days already
// dispatched are still committed. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		o.log.WithComponent("orchestrator").WithFields(logger.Fields{
			"venue": o.pipeline.Venue(),
			"state": Stopping.String(),
		}).Info("stop requested; finishing in-flight days")
		close(o.stopCh)
	})
}

func (o *Orchestrator) stopping() bool {
	select {
	case <-o.stopCh:
		return true
	default:
		return false
	}
}

// Resolve returns the first day to process for symbol.
func (o *Orchestrator) Resolve(ctx context.Context, symbol string) (time.Time, error) {
	start, _ := o.pipeline.Range()
	if o.forceFull {
		return start, nil
	}

	last, ok, err := o.store.LastMinute(ctx, o.pipeline.Table(), symbol)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return start, nil
	}

	day := models.Day(last)
	if last.Hour() == 23 && last.Minute() == 59 {
		day = day.AddDate(0, 0, 1)
	}
	if day.Before(start) {
		return start, nil
	}
	return day, nil
}

// endDay is the last day to process: the configured end or yesterday (UTC).
func (o *Orchestrator) endDay() time.Time {
	_, end := o.pipeline.Range()
	if !end.IsZero() {
		return end
	}
	return models.Day(o.now()).AddDate(0, 0, -1)
}

// Run processes symbols one after another. A failing symbol does not stop
// the others; all failures are joined into the returned error. A stop
// request or cancelled context ends the run early without an error.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) (Summary, error) {
	sum := Summary{Venue: o.pipeline.Venue(), Symbols: len(symbols)}
	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{"venue": sum.Venue})
	start := time.Now()

	var errs []error
	for _, symbol := range symbols {
		if o.stopping() || ctx.Err() != nil {
			break
		}
		if err := o.runSymbol(ctx, symbol, &sum); err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("symbol run failed")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	sum.Stopped = o.stopping() || ctx.Err() != nil

	logger.LogPerformanceEntry(log, "orchestrator", "run", time.Since(start), logger.Fields{
		"symbols": sum.Symbols,
		"days":    sum.Days,
		"skipped": sum.Skipped,
		"records": sum.Records,
		"failed":  sum.Failed,
		"crossed": sum.Crossed,
		"stopped": sum.Stopped,
	})
	metrics.PublishSummary(context.WithoutCancel(ctx), sum.Venue, map[string]float64{
		"DaysCommitted":  float64(sum.Days),
		"DaysSkipped":    float64(sum.Skipped),
		"DaysFailed":     float64(sum.Failed),
		"RecordsWritten": float64(sum.Records),
		"CrossedSamples": float64(sum.Crossed),
	})
	return sum, errors.Join(errs...)
}

type dayJob struct {
	day     time.Time
	started time.Time
	done    chan dayOutput
}

type dayOutput struct {
	batch *DayBatch
	err   error
}

// runSymbol builds days concurrently and commits them in order. The first
// failure stops dispatch; later days are drained but never committed.
func (o *Orchestrator) runSymbol(ctx context.Context, symbol string, sum *Summary) error {
	log := o.log.WithComponent("orchestrator").WithFields(logger.Fields{
		"venue":  o.pipeline.Venue(),
		"symbol": symbol,
	})

	o.transition(log, time.Time{}, Resolving)
	from, err := o.Resolve(ctx, symbol)
	if err != nil {
		return fmt.Errorf("resolve resume point: %w", err)
	}
	to := o.endDay()
	if from.After(to) {
		log.WithFields(logger.Fields{"resume": from.Format("2006-01-02")}).Info("symbol is up to date")
		return nil
	}
	log.WithFields(logger.Fields{
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"workers": o.workers,
	}).Info("resolved day range")

	runCtx, halt := context.WithCancel(ctx)
	defer halt()

	tokens := make(chan struct{}, o.workers)
	pending := make(chan *dayJob, o.workers)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(pending)
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if o.stopping() || gctx.Err() != nil {
				return nil
			}
			select {
			case tokens <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			if o.stopping() {
				<-tokens
				return nil
			}

			job := &dayJob{day: day, started: time.Now(), done: make(chan dayOutput, 1)}
			pending <- job
			g.Go(func() error {
				b, err := o.pipeline.Build(gctx, symbol, job.day, func(s State) { o.transition(log, job.day, s) })
				job.done <- dayOutput{batch: b, err: err}
				return nil
			})
		}
		return nil
	})

	var failure error
	for job := range pending {
		out := <-job.done
		if failure == nil && ctx.Err() == nil {
			if err := o.commit(ctx, log, symbol, job, out, sum); err != nil {
				failure = err
				halt()
			}
		}
		<-tokens
	}
	_ = g.Wait()

	if failure == nil {
		o.transition(log, time.Time{}, Idle)
	}
	return failure
}

// commit finishes one built day. Cancellation caused by a hard stop is not
// reported as a failure.
func (o *Orchestrator) commit(ctx context.Context, log *logger.Entry, symbol string, job *dayJob, out dayOutput, sum *Summary) error {
	dayLog := log.WithFields(logger.Fields{"day": job.day.Format("2006-01-02")})
	venue := o.pipeline.Venue()

	res := DayResult{Symbol: symbol, Day: job.day}
	if out.err == nil && out.batch.NotPublished {
		res.Outcome = OutcomeNotPublished
		res.Duration = time.Since(job.started)
		sum.add(res)
		o.metrics.DayOutcome(venue, res.Outcome.String())
		dayLog.Info("day not published; skipped")
		return nil
	}

	err := out.err
	if err == nil {
		o.transition(log, job.day, Persisting)
		err = o.pipeline.Persist(ctx, o.store, out.batch)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			dayLog.Warn("day abandoned by cancellation")
			return nil
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		sum.add(res)
		o.metrics.DayOutcome(venue, res.Outcome.String())
		dayLog.WithError(err).Error("day failed")
		return fmt.Errorf("day %s: %w", job.day.Format("2006-01-02"), err)
	}

	res.Outcome = OutcomeCommitted
	res.Records = out.batch.Len()
	res.Crossed = out.batch.Crossed
	res.Duration = time.Since(job.started)
	sum.add(res)
	o.transition(log, job.day, Committed)

	o.metrics.DayOutcome(venue, res.Outcome.String())
	o.metrics.Records(venue, res.Records)
	o.metrics.Crossed(venue, res.Crossed)
	o.metrics.ObserveDay(venue, res.Duration)

	dayLog.WithFields(logger.Fields{
		"records":     res.Records,
		"crossed":     res.Crossed,
		"bytes":       out.batch.Bytes,
		"duration_ms": res.Duration.Milliseconds(),
	}).Info("day committed")
	logger.LogDataFlowEntry(dayLog, venue, o.pipeline.Table().Name(), res.Records, "minute_record")

	o.export(ctx, dayLog, out.batch)
	return nil
}

// export runs after commit; its failures never undo the commit.
func (o *Orchestrator) export(ctx context.Context, log *logger.Entry, b *DayBatch) {
	if o.exporter == nil || b.Len() == 0 {
		return
	}
	key, err := o.pipeline.Export(ctx, o.exporter, b)
	if err != nil {
		o.metrics.ExportFailed(o.pipeline.Venue())
		log.WithError(err).Warn("parquet export failed")
		return
	}
	log.WithFields(logger.Fields{"key": key}).Debug("day exported")
}

func (o *Orchestrator) transition(log *logger.Entry, day time.Time, s State) {
	if day.IsZero() {
		log.WithFields(logger.Fields{"state": s.String()}).Debug("state transition")
		return
	}
	log.WithFields(logger.Fields{"state": s.String(), "day": day.Format("2006-01-02")}).Debug("state transition")
}
