package archive

import (
	"context"
	"fmt"
)

// Backend names.
const (
	BackendFS  = "fs"
	BackendS3  = "s3"
	BackendGCS = "gcs"
)

// Config selects and configures an archive backend.
type Config struct {
	Backend string
	Dir     string // fs

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3AccessKeyID     string
	S3SecretAccessKey string

	GCSBucket string
	GCSPrefix string
}

// NewStore builds the configured backend. An empty backend means fs.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "data/archive"
		}
		return NewFileStore(dir)

	case BackendS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("archive: s3 bucket is required for s3 storage")
		}
		region := cfg.S3Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:          cfg.S3Bucket,
			Region:          region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})

	case BackendGCS:
		return newGCSStore(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}
