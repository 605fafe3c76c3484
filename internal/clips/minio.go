package clips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// MinioSink uploads clips to an S3 compatible bucket.
type MinioSink struct {
	mc     *minio.Client
	bucket string
}

func NewMinioSink(cfg MinioConfig) (*MinioSink, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("clips: minio endpoint and bucket are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	return &MinioSink{mc: mc, bucket: cfg.Bucket}, nil
}

// Init creates the bucket if it does not exist yet.
func (m *MinioSink) Init(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	log.Info("Bucket created", "bucket", m.bucket)
	return nil
}

func (m *MinioSink) Store(ctx context.Context, source, sessionID string, clip []byte) error {
	name := ObjectName(source, sessionID, clip)
	_, err := m.mc.PutObject(ctx, m.bucket, name, bytes.NewReader(clip), int64(len(clip)), minio.PutObjectOptions{
		ContentType: ContentType(clip),
		UserMetadata: map[string]string{
			"source":  source,
			"session": sessionID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", m.bucket, name, err)
	}

	log.Debug("Clip uploaded", "bucket", m.bucket, "name", name, "size", len(clip))
	return nil
}
