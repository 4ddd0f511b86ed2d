package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store writes assets to an S3-compatible bucket. It is selected over
// FileStore whenever a bucket name is configured, and supports pointing at
// non-AWS endpoints (MinIO, R2) via endpoint + path-style overrides.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds the settings needed to build an S3Store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
	KeyPrefix string
}

// NewS3Store builds an S3Store, resolving credentials the standard AWS way
// (environment, shared config, instance role) unless an explicit endpoint
// is given for an S3-compatible service.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: cfg.PathStyle,
					SigningRegion:     cfg.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}, nil
}

// Write uploads data under key (optionally namespaced by a configured
// prefix) and returns an s3:// URL identifying the object.
func (s *S3Store) Write(ctx context.Context, key string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix != "" {
		cleanKey = strings.TrimSuffix(s.prefix, "/") + "/" + cleanKey
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(cleanKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentTypeForKey(cleanKey)),
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, cleanKey), nil
}

func contentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ Uploader = (*S3Store)(nil)
