package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"chat-backend/internal/models"
)

// Uploader stores media bytes and returns a URL clients can fetch.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, size int64, contentType, folder, publicID string) (string, error)
}

// MinioStore uploads to an S3-compatible bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL *url.URL
	log     *zap.Logger
}

type Options struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	PublicBaseURL string
}

// NewMinioStore connects and creates the bucket when missing.
func NewMinioStore(ctx context.Context, opts Options, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("bucket created", zap.String("bucket", opts.Bucket))
	}

	base := opts.PublicBaseURL
	if base == "" {
		scheme := "http"
		if opts.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + opts.Endpoint
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}

	return &MinioStore{client: client, bucket: opts.Bucket, baseURL: baseURL, log: logger.Named("media")}, nil
}

func (s *MinioStore) Upload(ctx context.Context, r io.Reader, size int64, contentType, folder, publicID string) (string, error) {
	key := ObjectKey(folder, publicID, contentType)
	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	s.log.Debug("media uploaded", zap.String("key", key), zap.Int64("size", info.Size))
	return s.publicURL(key), nil
}

func (s *MinioStore) publicURL(key string) string {
	u := *s.baseURL
	u.Path = path.Join(u.Path, s.bucket, key)
	return u.String()
}

// ObjectKey builds folder/publicID plus an extension derived from contentType.
func ObjectKey(folder, publicID, contentType string) string {
	name := publicID
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return path.Join(strings.Trim(folder, "/"), name)
}

// FileTypeFor classifies a MIME type into an attachment type.
func FileTypeFor(contentType string) models.FileType {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return models.FileDocument
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return models.FileImage
	case strings.HasPrefix(mediaType, "video/"):
		return models.FileVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return models.FileVoice
	}
	return models.FileDocument
}
