package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"bookflow/config"
	"bookflow/internal/ingest"
	"bookflow/internal/metrics"
	"bookflow/internal/symbols"
	"bookflow/logger"
	"bookflow/reader"
	"bookflow/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	venueFlag := flag.String("venue", "all", "Venue to ingest: bybit, binance or all")
	symbolsFlag := flag.String("symbols", "", "Comma separated symbols overriding the configured list")
	forceFull := flag.Bool("force-full-reload", false, "Ignore checkpoints and reprocess from the start date")
	backfill := flag.Bool("backfill", false, "Fill missing ticker columns from monthly archives after the run")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		return 1
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		return 1
	}

	runID := uuid.NewString()
	log.SetRunID(runID)
	log.WithFields(logger.Fields{
		"service": cfg.Bookflow.Name,
		"version": cfg.Bookflow.Version,
		"venue":   *venueFlag,
	}).Info("starting bookflow")
	defer logger.LogReport(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := metrics.NewRegistry()
	m := metrics.NewMetrics(reg)
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, reg); err != nil {
				log.WithComponent("metrics").WithError(err).Error("metrics server stopped")
			}
		}()
	}
	if cw := cfg.Metrics.CloudWatch; cw.Enabled {
		if err := metrics.InitCloudWatch(ctx, cw.Region, cw.Namespace); err != nil {
			log.WithComponent("metrics").WithError(err).Warn("cloudwatch disabled")
		}
	}

	var s3Client *s3.Client
	needS3 := cfg.Reader.Backend == "s3" || (cfg.Export.Parquet.Enabled && cfg.Export.Parquet.UploadS3)
	if needS3 {
		if s3Client, err = reader.NewS3Client(ctx, cfg.Storage.S3); err != nil {
			log.WithError(err).Error("Failed to create S3 client")
			return 1
		}
	}

	store, err := writer.NewRecordStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to open record store")
		return 1
	}
	defer store.Close()

	var exporter ingest.Exporter
	if cfg.Export.Parquet.Enabled {
		var putter writer.ObjectPutter
		if s3Client != nil {
			putter = s3Client
		}
		pe, err := writer.NewParquetExporter(cfg, putter, runID)
		if err != nil {
			log.WithError(err).Error("Failed to create parquet exporter")
			return 1
		}
		exporter = pe
	}

	opts := ingest.Options{
		Workers:         cfg.Ingest.Workers,
		ForceFullReload: cfg.Ingest.ForceFullReload || *forceFull,
		Exporter:        exporter,
		Metrics:         m,
	}

	type job struct {
		orch    *ingest.Orchestrator
		symbols []string
		archive bool
	}
	var jobs []job

	if want(*venueFlag, symbols.Bybit) && cfg.Source.Bybit.Enabled {
		p, err := ingest.NewNativePipeline(cfg, newFetcher(cfg, s3Client, cfg.Source.Bybit.BaseURL, m))
		if err != nil {
			log.WithError(err).Error("Failed to create bybit pipeline")
			return 1
		}
		jobs = append(jobs, job{
			orch:    ingest.NewOrchestrator(p, store, opts),
			symbols: symbols.NormalizeAll(symbols.Bybit, pickSymbols(*symbolsFlag, cfg.Source.Bybit.Symbols)),
		})
	}
	if want(*venueFlag, symbols.Binance) && cfg.Source.Binance.Enabled {
		p, err := ingest.NewArchivePipeline(cfg, newFetcher(cfg, s3Client, cfg.Source.Binance.BaseURL, m))
		if err != nil {
			log.WithError(err).Error("Failed to create binance pipeline")
			return 1
		}
		jobs = append(jobs, job{
			orch:    ingest.NewOrchestrator(p, store, opts),
			symbols: symbols.NormalizeAll(symbols.Binance, pickSymbols(*symbolsFlag, cfg.Source.Binance.Symbols)),
			archive: true,
		})
	}
	if len(jobs) == 0 {
		log.WithFields(logger.Fields{"venue": *venueFlag}).Error("no enabled venue selected")
		return 1
	}

	// First signal stops at the next day boundary, the second cancels.
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		var once sync.Once
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				stopped := false
				once.Do(func() {
					stopped = true
					log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown requested")
					for _, j := range jobs {
						j.orch.Stop()
					}
				})
				if !stopped {
					log.WithFields(logger.Fields{"signal": sig.String()}).Warn("second signal; cancelling in-flight work")
					cancel()
					return
				}
			}
		}
	}()

	var errs []error
	for _, j := range jobs {
		sum, err := j.orch.Run(ctx, j.symbols)
		log.WithFields(logger.Fields{
			"venue":   sum.Venue,
			"days":    sum.Days,
			"skipped": sum.Skipped,
			"records": sum.Records,
			"failed":  sum.Failed,
			"stopped": sum.Stopped,
		}).Info("venue run finished")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sum.Venue, err))
		}
		if sum.Stopped {
			break
		}

		if *backfill && j.archive {
			bsum, err := j.orch.Backfill(ctx, j.symbols)
			log.WithFields(logger.Fields{
				"venue":   sum.Venue,
				"months":  bsum.Months,
				"skipped": bsum.Skipped,
				"gaps":    bsum.Gaps,
				"filled":  bsum.Filled,
			}).Info("ticker backfill finished")
			if err != nil {
				errs = append(errs, fmt.Errorf("%s backfill: %w", sum.Venue, err))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Error("bookflow finished with failures")
		return 1
	}
	log.Info("bookflow finished")
	return 0
}

func want(flagVenue, venue string) bool {
	v := strings.ToLower(strings.TrimSpace(flagVenue))
	return v == "" || v == "all" || v == venue
}

func pickSymbols(flagValue string, configured []string) []string {
	if strings.TrimSpace(flagValue) == "" {
		return configured
	}
	return strings.Split(flagValue, ",")
}

func newFetcher(cfg *config.Config, client *s3.Client, baseURL string, m *metrics.Metrics) reader.Fetcher {
	backend := cfg.Reader.Backend
	policy := reader.PolicyFromConfig(cfg.Reader.Retry)
	policy.OnRetry = func(attempt int, err error) { m.FetchRetry(backend) }
	if backend == "s3" {
		return reader.NewS3Fetcher(client, cfg, policy)
	}
	return reader.NewHTTPFetcher(cfg, baseURL, policy)
}
