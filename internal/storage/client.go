// Package storage provides object-storage access for the ingestion pipeline:
// listing staged CSV files under a bucket prefix and downloading them in
// bounded chunks. Any S3-compatible backend works; the default endpoint
// targets DigitalOcean Spaces.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds object-storage connection settings.
type Config struct {
	Key      string
	Secret   string
	Region   string
	Bucket   string
	Prefix   string
	Endpoint string // optional; derived from Region when empty
}

// s3API is the slice of the S3 client the ingestion pipeline uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client wraps an S3 client scoped to one bucket and prefix.
type Client struct {
	s3     s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewClient builds an S3 client with static credentials against the
// configured endpoint.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", cfg.Region)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	logger.Debug("object storage client ready", "endpoint", endpoint, "bucket", cfg.Bucket, "prefix", cfg.Prefix)

	return &Client{
		s3:     client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger,
	}, nil
}
