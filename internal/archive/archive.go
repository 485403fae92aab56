// Package archive copies the raw text of every stored message to an
// S3-compatible bucket, optionally zstd-compressed.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/valyala/gozstd"

	"github.com/abyssox/opentrashmail/internal/config"
	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/metrics"
)

const (
	rawExt  = ".eml"
	zstdExt = ".zst"
)

// ObjectStore is the subset of the S3 API the archiver uses.
type ObjectStore interface {
	PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
}

// Config holds configuration for creating an Archiver.
type Config struct {
	Client    ObjectStore
	Bucket    string
	Compress  bool
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
}

// Archiver uploads raw messages.
type Archiver struct {
	client    ObjectStore
	bucket    string
	compress  bool
	collector metrics.Collector
	logger    *slog.Logger
}

// NewS3Client builds an S3 client from the archive configuration. A custom
// endpoint switches to path-style addressing as most S3-compatible stores
// expect.
func NewS3Client(cfg config.ArchiveConfig) (*s3.S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.StaticProvider{
				Value: credentials.Value{
					AccessKeyID:     cfg.AccessKey,
					SecretAccessKey: cfg.SecretKey,
				},
			},
		})
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating s3 session: %w", err)
	}
	return s3.New(sess), nil
}

// New creates an Archiver.
func New(cfg Config) (*Archiver, error) {
	if cfg.Client == nil {
		return nil, errors.New("archive: s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}
	a := &Archiver{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		compress:  cfg.Compress,
		collector: cfg.Collector,
		logger:    cfg.Logger,
	}
	if a.collector == nil {
		a.collector = &metrics.NoopCollector{}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Key returns the object key of a stored record.
func Key(recipient, id string, compress bool) string {
	key := recipient + "/" + id + rawExt
	if compress {
		key += zstdExt
	}
	return key
}

// Name identifies the archiver in logs.
func (a *Archiver) Name() string {
	return "s3-archive"
}

// MessageStored uploads the raw text of stored under the recipient prefix.
func (a *Archiver) MessageStored(ctx context.Context, recipient string, stored *mailbox.Stored) error {
	body := []byte(stored.Record.Raw)
	contentType := "message/rfc822"
	if a.compress {
		body = gozstd.Compress(nil, body)
		contentType = "application/zstd"
	}

	key := Key(recipient, stored.ID, a.compress)
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		a.collector.MessageArchived("failure")
		return fmt.Errorf("uploading %s to bucket %s: %w", key, a.bucket, err)
	}
	a.collector.MessageArchived("success")
	a.logger.Debug("raw message archived",
		slog.String("bucket", a.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(body)))
	return nil
}

// Fetch downloads an archived message and returns its raw text.
func (a *Archiver) Fetch(ctx context.Context, recipient, id string) ([]byte, error) {
	key := Key(recipient, id, a.compress)
	resp, err := a.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s from bucket %s: %w", key, a.bucket, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if strings.HasSuffix(key, zstdExt) {
		data, err = gozstd.Decompress(nil, data)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", key, err)
		}
	}
	return data, nil
}
