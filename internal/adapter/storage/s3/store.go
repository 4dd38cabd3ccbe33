// Package s3 moves catalog files to and from S3-compatible object storage.
package s3

import (
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object name.
	Prefix string
}

// Store implements domain.ObjectStore.
type Store struct {
	client   *minio.Client
	bucket   string
	region   string
	prefix   string
	initOnce sync.Once
	initErr  error
}

// New validates cfg and builds a client. No network call is made until the
// first Put or Get.
func New(cfg Config) (*Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	bucket := strings.TrimSpace(cfg.Bucket)
	switch {
	case endpoint == "":
		return nil, fmt.Errorf("op=s3.New: %w: endpoint is required", domain.ErrInvalidArgument)
	case access == "" || secret == "":
		return nil, fmt.Errorf("op=s3.New: %w: access key and secret key are required", domain.ErrInvalidArgument)
	case bucket == "":
		return nil, fmt.Errorf("op=s3.New: %w: bucket is required", domain.ErrInvalidArgument)
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("op=s3.New: %w", err)
	}
	return &Store{client: client, bucket: bucket, region: region, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

func (s *Store) ensureBucket(ctx domain.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if !exists {
			s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		}
	})
	return s.initErr
}

// ObjectName maps a remote name onto the bucket key.
func (s *Store) ObjectName(remoteName string) string {
	name := strings.TrimLeft(path.Clean("/"+strings.TrimSpace(remoteName)), "/")
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads the local file as remoteName.
func (s *Store) Put(ctx domain.Context, localPath, remoteName string) error {
	if strings.TrimSpace(remoteName) == "" {
		return fmt.Errorf("op=s3.Put: %w: remote name is required", domain.ErrInvalidArgument)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("op=s3.Put: ensure bucket: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(localPath))
	if ct == "" {
		ct = "application/octet-stream"
	}
	key := s.ObjectName(remoteName)
	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		return fmt.Errorf("op=s3.Put: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("catalog file uploaded",
		slog.String("bucket", s.bucket), slog.String("key", key), slog.Int64("size", info.Size))
	return nil
}

// Get downloads remoteName to localPath. A missing object is domain.ErrNotFound.
func (s *Store) Get(ctx domain.Context, remoteName, localPath string) error {
	key := s.ObjectName(remoteName)
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchBucket" {
			return fmt.Errorf("op=s3.Get: %w: %s", domain.ErrNotFound, key)
		}
		return fmt.Errorf("op=s3.Get: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("catalog file downloaded",
		slog.String("bucket", s.bucket), slog.String("key", key))
	return nil
}
