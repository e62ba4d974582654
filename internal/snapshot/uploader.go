// Package snapshot handles periodic database snapshots and their upload to
// S3-compatible storage. When no bucket is configured the NoopUploader keeps
// the system in local-only mode.
package snapshot

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jalonhq/jalon/internal/config"
)

// Uploader pushes snapshot files to off-host storage.
type Uploader interface {
	// Upload stores the snapshot file at filePath under its base name.
	Upload(ctx context.Context, filePath string) error
}

// s3Client is the minimal minio.Client surface used by S3Uploader, split out
// so tests can substitute a mock.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3Uploader uploads snapshots to an S3-compatible bucket.
type S3Uploader struct {
	client s3Client
	bucket string
}

// Upload pushes one snapshot file. The object key is snapshots/{filename},
// so successive snapshots accumulate rather than overwrite.
func (u *S3Uploader) Upload(ctx context.Context, filePath string) error {
	key := objectKey(filePath)
	opts := minio.PutObjectOptions{ContentType: "application/octet-stream"}
	if _, err := u.client.FPutObject(ctx, u.bucket, key, filePath, opts); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

// NoopUploader is used when no bucket is configured.
type NoopUploader struct{}

// Upload is a no-op.
func (u *NoopUploader) Upload(ctx context.Context, filePath string) error {
	return nil
}

// NewUploader creates the uploader matching the configuration: NoopUploader
// when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.SnapshotStorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(filePath string) string {
	return "snapshots/" + filepath.Base(filePath)
}
