package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"bookflow/config"
	"bookflow/logger"
	"bookflow/models"
)

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// memoryFileWriter implements source.ParquetFile over an in-memory buffer.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) { return mfw, nil }

// Seek only reports the write position; the writer never seeks backwards.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error { return nil }
func (mfw *memoryFileWriter) Bytes() []byte { return mfw.buffer.Bytes() }

// ParquetExporter writes one parquet object per committed (table, symbol, day)
// either to S3 or to a local directory. Object names are deterministic so a
// reprocessed day replaces its earlier export.
type ParquetExporter struct {
	cfg      config.ParquetConfig
	bucket   string
	prefix   string
	version  string
	runID    string
	s3Client ObjectPutter
	log      *logger.Log
}

// NewParquetExporter builds an exporter. s3Client may be nil when uploads are disabled.
func NewParquetExporter(cfg *config.Config, s3Client ObjectPutter, runID string) (*ParquetExporter, error) {
	p := cfg.Export.Parquet
	if p.UploadS3 && s3Client == nil {
		return nil, fmt.Errorf("parquet upload requires an S3 client")
	}
	if !p.UploadS3 {
		if err := os.MkdirAll(p.LocalDir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}
	return &ParquetExporter{
		cfg:      p,
		bucket:   cfg.Storage.S3.Bucket,
		prefix:   cfg.Storage.S3.Prefix,
		version:  cfg.Bookflow.Version,
		runID:    runID,
		s3Client: s3Client,
		log:      logger.GetLogger(),
	}, nil
}

// ExportNative writes a committed native-venue day.
func (e *ParquetExporter) ExportNative(ctx context.Context, symbol string, day time.Time, records []models.MinuteRecord) (string, error) {
	rows := make([]interface{}, len(records))
	for i := range records {
		rows[i] = toNativeParquet(&records[i])
	}
	return e.export(ctx, TableNative, symbol, day, new(nativeParquetRecord), rows)
}

// ExportArchive writes a committed archive-venue day.
func (e *ParquetExporter) ExportArchive(ctx context.Context, symbol string, day time.Time, records []models.ArchiveMinuteRecord) (string, error) {
	rows := make([]interface{}, len(records))
	for i := range records {
		rows[i] = toArchiveParquet(&records[i])
	}
	return e.export(ctx, TableArchive, symbol, day, new(archiveParquetRecord), rows)
}

// ObjectKey is the relative location of a day's export.
func ObjectKey(table Table, symbol string, day time.Time) string {
	date := day.UTC().Format("2006-01-02")
	return path.Join(
		table.Name(),
		"symbol="+symbol,
		"date="+date,
		fmt.Sprintf("%s_%s_%s.parquet", table.Name(), symbol, date),
	)
}

func (e *ParquetExporter) export(ctx context.Context, table Table, symbol string, day time.Time, schema interface{}, rows []interface{}) (string, error) {
	log := e.log.WithComponent("parquet_exporter").WithFields(logger.Fields{
		"table":  table.Name(),
		"symbol": symbol,
		"day":    day.Format("2006-01-02"),
	})
	if len(rows) == 0 {
		log.Debug("nothing to export")
		return "", nil
	}

	start := time.Now()
	data, err := e.encode(schema, rows)
	if err != nil {
		return "", err
	}

	key := ObjectKey(table, symbol, day)
	if e.cfg.UploadS3 {
		key = path.Join(e.prefix, "export", key)
		if err := e.upload(ctx, key, data); err != nil {
			return "", err
		}
	} else {
		key = filepath.Join(e.cfg.LocalDir, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
			return "", fmt.Errorf("create export dir: %w", err)
		}
		if err := os.WriteFile(key, data, 0o644); err != nil {
			return "", fmt.Errorf("write export: %w", err)
		}
	}

	logger.LogPerformanceEntry(log, "parquet_exporter", "export", time.Since(start), logger.Fields{
		"key":       key,
		"rows":      len(rows),
		"file_size": len(data),
	})
	return key, nil
}

func (e *ParquetExporter) encode(schema interface{}, rows []interface{}) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := pqwriter.NewParquetWriter(fw, schema, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch e.cfg.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "zstd":
		pw.CompressionType = parquet.CompressionCodec_ZSTD
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (e *ParquetExporter) upload(ctx context.Context, key string, data []byte) error {
	_, err := e.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      e.cfg.Compression,
			"bookflow-version": e.version,
			"run-id":           e.runID,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", e.bucket, err)
	}
	return nil
}
