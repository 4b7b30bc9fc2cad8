package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// MinioStore writes objects to a MinIO (or any S3-compatible) server.
type MinioStore struct {
	client       *minio.Client
	bucket       string
	baseURL      string
	cacheControl string
	log          logger.Logger
}

// NewMinioStore connects to the endpoint and creates the bucket when missing.
// The endpoint may be a bare host:port or a URL whose scheme selects TLS.
func NewMinioStore(ctx context.Context, settings *conf.StorageSettings, log logger.Logger) (*MinioStore, error) {
	if log == nil {
		log = logger.Global().Module("storage")
	}

	endpoint := settings.Endpoint
	useSSL := settings.UseSSL
	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, errors.Newf("parse storage endpoint: %w", err).
				Component("storage").
				Category(errors.CategoryConfiguration).
				Build()
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: useSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, storageError(fmt.Errorf("init minio: %w", err), conf.StorageBackendMinio, "connect")
	}

	base := settings.PublicURL
	if base == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, endpoint, settings.Bucket)
	}

	s := &MinioStore{
		client:       client,
		bucket:       settings.Bucket,
		baseURL:      base,
		cacheControl: settings.CacheControl,
		log:          log,
	}
	if err := s.ensureBucket(ctx, settings.Region); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return storageError(fmt.Errorf("bucket exists %s: %w", s.bucket, err), conf.StorageBackendMinio, "bucket_exists")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return storageError(fmt.Errorf("create bucket %s: %w", s.bucket, err), conf.StorageBackendMinio, "make_bucket")
	}
	s.log.Info("Created storage bucket", logger.String("bucket", s.bucket))
	return nil
}

// Put uploads data under key.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: s.cacheControl,
	})
	if err != nil {
		return "", storageError(err, conf.StorageBackendMinio, "put")
	}
	s.log.Debug("Stored object", logger.String("key", key), logger.Int("size", len(data)))
	return objectURL(s.baseURL, key), nil
}
