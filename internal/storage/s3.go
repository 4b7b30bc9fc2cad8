package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/logger"
)

// S3Store writes objects to Amazon S3 or an S3-compatible endpoint.
type S3Store struct {
	client       *s3.Client
	bucket       string
	baseURL      string
	cacheControl string
	log          logger.Logger
}

// NewS3Store loads the AWS configuration. Static keys from settings take
// precedence over the default credential chain. A custom endpoint switches
// to path-style addressing.
func NewS3Store(ctx context.Context, settings *conf.StorageSettings, log logger.Logger) (*S3Store, error) {
	if log == nil {
		log = logger.Global().Module("storage")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(settings.Region)}
	if settings.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, storageError(fmt.Errorf("load aws config: %w", err), conf.StorageBackendS3, "connect")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
			// third-party S3 servers often reject the newer default checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	base := settings.PublicURL
	switch {
	case base != "":
	case settings.Endpoint != "":
		base = objectURL(settings.Endpoint, settings.Bucket)
	default:
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", settings.Bucket, settings.Region)
	}

	return &S3Store{
		client:       client,
		bucket:       settings.Bucket,
		baseURL:      base,
		cacheControl: settings.CacheControl,
		log:          log,
	}, nil
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.cacheControl != "" {
		input.CacheControl = aws.String(s.cacheControl)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.log.Error("Failed to upload object", logger.String("key", key), logger.Error(err))
		return "", storageError(err, conf.StorageBackendS3, "put")
	}
	return objectURL(s.baseURL, key), nil
}
