package observer

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Archiver moves SQLite-fallback log segments older than a retention
// window to S3 as gzip-compressed newline-delimited JSON, then deletes
// them from the hot store. It archives only the SQLite Store; when the
// observer persists to Redis Streams that store receives no entries, and
// Redis Streams' own MAXLEN trimming bounds the persisted backend.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	store    *Store
	log      *zap.Logger
}

// NewArchiver builds an Archiver from standard AWS SDK configuration
// (environment credentials, shared config file, or an attached role),
// without requiring static keys, since this runs as an internal batch job
// rather than a user-facing tool.
func NewArchiver(ctx context.Context, region, bucket, prefix string, store *Store, log *zap.Logger) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("observer: archive bucket is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("observer: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &Archiver{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			// part size is the SDK minimum (5MiB, also its default): a
			// segment smaller than that goes up in a single request,
			// a larger one in 5MiB parts.
			u.PartSize = manager.MinUploadPartSize
		}),
		bucket: bucket,
		prefix: prefix,
		store:  store,
		log:    log,
	}, nil
}

// RunPeriodic archives segments older than maxAge on interval until ctx is
// cancelled.
func (a *Archiver) RunPeriodic(ctx context.Context, stream string, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.ArchiveOlderThan(ctx, stream, maxAge); err != nil {
				a.log.Warn("archive sweep failed", zap.String("stream", stream), zap.Error(err))
			}
		}
	}
}

// ArchiveOlderThan uploads every entry of stream older than maxAge as one
// gzip NDJSON object, then deletes the archived rows from the hot store.
func (a *Archiver) ArchiveOlderThan(ctx context.Context, stream string, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	entries, err := a.store.OlderThan(ctx, stream, cutoff)
	if err != nil {
		return fmt.Errorf("observer: query archive segment: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(gz)
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			gz.Close()
			return fmt.Errorf("observer: encode archive entry: %w", err)
		}
		ids = append(ids, e.ID)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("observer: close gzip writer: %w", err)
	}

	key := a.objectKey(stream, entries[0].RecvTs, entries[len(entries)-1].RecvTs)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("observer: upload archive segment %s: %w", key, err)
	}

	if err := a.store.DeleteIDs(ctx, ids); err != nil {
		return fmt.Errorf("observer: delete archived rows after upload of %s: %w", key, err)
	}
	a.log.Info("archived log segment", zap.String("stream", stream), zap.String("key", key), zap.Int("entries", len(entries)))
	return nil
}

func (a *Archiver) objectKey(stream string, fromMs, toMs int64) string {
	from := time.UnixMilli(fromMs).UTC()
	return fmt.Sprintf("%s/%s/%s-%d-%d.ndjson.gz", a.prefix, stream, from.Format("2006/01/02"), fromMs, toMs)
}
