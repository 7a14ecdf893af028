package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrUploadNotConfigured is returned when a bucket is named without
// the rest of the storage settings it needs.
var ErrUploadNotConfigured = errors.New("snapshot storage not configured")

// Uploader copies snapshot files to off-device storage. Upload failures
// are never fatal to a backup: the local snapshot remains valid.
type Uploader interface {
	Upload(ctx context.Context, objectName, filePath string) error
}

// StorageConfig configures the S3-compatible snapshot bucket. An empty
// bucket keeps the system in local-only mode.
type StorageConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Prefix    string
}

// s3Client is the minimal minio.Client surface the uploader needs.
// Narrowed for testing with mock implementations.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Uploader uploads snapshot files to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
	prefix string
}

func (u *S3Uploader) Upload(ctx context.Context, objectName, filePath string) error {
	key := objectName
	if u.prefix != "" {
		key = u.prefix + "/" + objectName
	}
	opts := minio.PutObjectOptions{ContentType: "application/json"}
	if _, err := u.client.FPutObject(ctx, u.bucket, key, filePath, opts); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

// NoopUploader is used when off-device storage is not configured.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, string) error { return nil }

// NewUploader creates the appropriate Uploader for the configuration:
// NoopUploader when no bucket is set, S3Uploader otherwise.
func NewUploader(cfg StorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("bucket %q: %w", cfg.Bucket, ErrUploadNotConfigured)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}
