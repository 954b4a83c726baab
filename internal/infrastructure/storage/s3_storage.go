package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
)

// S3Storage handles uploads and deletes against S3-compatible storage.
type S3Storage struct {
	bucket    string
	keyPrefix string
	region    string
	endpoint  string
	publicURL string
	pathStyle bool
	client    *s3.Client
	log       zerolog.Logger
}

func NewS3Storage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3Storage, error) {
	logger := log.With().Str("component", "s3-storage").Logger()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
		// The upload service owns the retry decision.
		o.RetryMaxAttempts = 1
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})

	storage := &S3Storage{
		bucket:    cfg.S3Bucket,
		keyPrefix: strings.TrimPrefix(cfg.S3KeyPrefix, "/"),
		region:    cfg.S3Region,
		endpoint:  strings.TrimSuffix(cfg.S3Endpoint, "/"),
		publicURL: strings.TrimSuffix(cfg.S3PublicBaseURL, "/"),
		pathStyle: cfg.S3UsePathStyle,
		client:    client,
		log:       logger,
	}

	logger.Info().
		Str("bucket", storage.bucket).
		Str("endpoint", storage.endpoint).
		Bool("path_style", storage.pathStyle).
		Msg("s3 storage initialized")
	return storage, nil
}

func (s *S3Storage) Name() string { return config.StorageS3 }

func (s *S3Storage) ManagesBytes() bool { return true }

func (s *S3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (upload.Stored, error) {
	objectKey := s.keyPrefix + key
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	metrics.RecordStorageOperation(s.Name(), "put", err, time.Since(start).Seconds())
	if err != nil {
		return upload.Stored{}, classifyS3Error("put object", err)
	}

	s.log.Debug().Str("key", objectKey).Int("bytes", len(data)).Msg("object uploaded")
	return upload.Stored{
		Location: s.objectURL(objectKey),
		Key:      objectKey,
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, stored upload.Stored) error {
	if stored.Key == "" {
		return fmt.Errorf("s3 delete: empty object key")
	}
	start := time.Now()
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(stored.Key),
	})
	metrics.RecordStorageOperation(s.Name(), "delete", err, time.Since(start).Seconds())
	if err != nil {
		return classifyS3Error("delete object", err)
	}
	return nil
}

// Health performs a HeadBucket request.
func (s *S3Storage) Health(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Storage) objectURL(key string) string {
	return buildObjectURL(s.publicURL, s.endpoint, s.bucket, s.region, s.pathStyle, key)
}

// buildObjectURL returns the public address of key. A configured public base URL wins,
// then the custom endpoint (path or virtual-hosted style), then the AWS regional host.
func buildObjectURL(publicURL, endpoint, bucket, region string, pathStyle bool, key string) string {
	escaped := escapeKey(key)
	if publicURL != "" {
		return publicURL + "/" + escaped
	}
	if endpoint != "" {
		if pathStyle {
			return fmt.Sprintf("%s/%s/%s", endpoint, bucket, escaped)
		}
		if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
			return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, bucket, u.Host, escaped)
		}
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, escaped)
	}
	if pathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", region, bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// classifyS3Error marks timeouts and 5xx responses as transient.
func classifyS3Error(op string, err error) error {
	var apiErr smithy.APIError
	code := ""
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) && withStatus.HTTPStatusCode() >= 500 {
		return fmt.Errorf("%w: s3 %s (%d %s): %w", upload.ErrTransient, op, withStatus.HTTPStatusCode(), code, err)
	}
	if isTimeout(err) {
		return fmt.Errorf("%w: s3 %s timed out: %w", upload.ErrTransient, op, err)
	}
	if code != "" {
		return fmt.Errorf("s3 %s (%s): %w", op, code, err)
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
