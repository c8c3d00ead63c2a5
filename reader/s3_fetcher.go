package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"bookflow/config"
	"bookflow/logger"
)

// ObjectGetter is the subset of the S3 client used by S3Fetcher.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads archives from a bucket that mirrors the venue layout.
type S3Fetcher struct {
	client   ObjectGetter
	bucket   string
	prefix   string
	policy   RetryPolicy
	timeout  time.Duration
	spoolDir string
	log      *logger.Log
}

// NewS3Client builds an S3 client from storage.s3, honoring a custom
// endpoint and path-style addressing for S3-compatible stores.
func NewS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// NewS3Fetcher creates a fetcher over client for the configured bucket.
func NewS3Fetcher(client ObjectGetter, cfg *config.Config, policy RetryPolicy) *S3Fetcher {
	f := &S3Fetcher{
		client:   client,
		bucket:   cfg.Storage.S3.Bucket,
		prefix:   cfg.Storage.S3.Prefix,
		policy:   policy,
		timeout:  cfg.Reader.Timeout,
		spoolDir: cfg.Reader.SpoolDir,
		log:      logger.GetLogger(),
	}

	f.log.WithComponent("s3_fetcher").WithFields(logger.Fields{
		"bucket": f.bucket,
		"prefix": f.prefix,
	}).Info("s3 fetcher initialized")
	return f
}

func (f *S3Fetcher) objectKey(key string) string {
	if f.prefix == "" {
		return key
	}
	return path.Join(f.prefix, key)
}

// Fetch downloads key from the bucket. NoSuchKey maps to NotPublished.
func (f *S3Fetcher) Fetch(ctx context.Context, key string) (*Archive, error) {
	log := f.log.WithComponent("s3_fetcher").WithFields(logger.Fields{"key": key, "bucket": f.bucket})
	objectKey := f.objectKey(key)

	start := time.Now()
	archive, err := fetchWithRetry(ctx, log, f.policy, f.spoolDir, key, func(ctx context.Context, sp *spool) (Status, int64, error) {
		reqCtx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}

		out, err := f.client.GetObject(reqCtx, &s3.GetObjectInput{
			Bucket: aws.String(f.bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			if isNotFound(err) {
				return NotPublished, 0, nil
			}
			return 0, 0, err
		}
		defer out.Body.Close()

		n, err := io.Copy(sp.f, out.Body)
		if err != nil {
			return 0, 0, fmt.Errorf("read object: %w", err)
		}
		return Published, n, nil
	})
	if err != nil {
		return nil, err
	}

	logger.LogPerformanceEntry(log, "s3_fetcher", "fetch", time.Since(start), logger.Fields{
		"status": archive.Status.String(),
		"bytes":  archive.Size(),
	})
	return archive, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		return status.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
