package backup

import (
	"errors"
	"testing"
)

func TestNewUploader(t *testing.T) {
	t.Run("no bucket yields noop", func(t *testing.T) {
		up, err := NewUploader(StorageConfig{})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := up.(NoopUploader); !ok {
			t.Errorf("expected NoopUploader, got %T", up)
		}
	})

	t.Run("bucket without endpoint", func(t *testing.T) {
		_, err := NewUploader(StorageConfig{Bucket: "fieldbase-backups"})
		if !errors.Is(err, ErrUploadNotConfigured) {
			t.Fatalf("expected ErrUploadNotConfigured, got %v", err)
		}
	})

	t.Run("full config yields s3", func(t *testing.T) {
		up, err := NewUploader(StorageConfig{
			Endpoint:  "minio.local:9000",
			Bucket:    "fieldbase-backups",
			AccessKey: "key",
			SecretKey: "secret",
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := up.(*S3Uploader); !ok {
			t.Errorf("expected S3Uploader, got %T", up)
		}
	})
}
