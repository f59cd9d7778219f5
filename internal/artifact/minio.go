package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/colthorp/planning-cli-go/internal/core"
)

// MinIOConfig configures the object storage backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether enough configuration is present to use MinIO.
func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

// MinIOBackend stores artifacts as objects in a MinIO (or S3-compatible) bucket.
// PutObject replaces the object in one step, so readers never see partial data.
type MinIOBackend struct {
	mc     *minio.Client
	bucket string
	prefix string
}

// NewMinIOBackend creates a MinIO client for the configured bucket.
func NewMinIOBackend(cfg MinIOConfig) (*MinIOBackend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access key and secret key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "planning"
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "screenshots/"
	}

	return &MinIOBackend{mc: mc, bucket: bucket, prefix: prefix}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (b *MinIOBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.mc.BucketExists(ctx, b.bucket)
	if err != nil {
		return errors.Wrap(err, "check bucket")
	}
	if !exists {
		if err := b.mc.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrap(err, "create bucket")
		}
		slog.Info("created artifact bucket", slog.String("bucket", b.bucket))
	}
	return nil
}

func (b *MinIOBackend) objectName(key string) string {
	return b.prefix + core.ArtifactName(key)
}

// Location returns the s3-style address of the object for key.
func (b *MinIOBackend) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", b.bucket, b.objectName(key))
}

// Write uploads data as the artifact for key.
func (b *MinIOBackend) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.mc.PutObject(ctx, b.bucket, b.objectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return errors.Wrapf(err, "upload %s", key)
	}
	return nil
}

// Read downloads the artifact for key.
func (b *MinIOBackend) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.mc.GetObject(ctx, b.bucket, b.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", key)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing object
	if _, err := obj.Stat(); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "stat %s", key)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	return data, nil
}

// Exists checks whether the object for key is present.
func (b *MinIOBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.mc.StatObject(ctx, b.bucket, b.objectName(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat %s", key)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
