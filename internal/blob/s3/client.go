// Package s3blob moves fully settled pools into S3-compatible object storage
// as immutable audit records. Any S3-compatible backend works; self-hosted
// deployments typically point the endpoint at MinIO or Cloudflare R2.
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig describes the archive bucket connection.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for S3-compatible providers.
	// Leave empty for standard AWS S3.
	Endpoint string

	// Region is the bucket region, or the provider's equivalent.
	Region string

	// Bucket holds the pool archives.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL selects https when Endpoint is given without a scheme.
	UseSSL bool

	// ForcePathStyle puts the bucket in the URL path rather than the
	// subdomain. Most self-hosted providers require it.
	ForcePathStyle bool
}

// Client is the shared connection the archive writer and reader operate on.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New connects to the archive bucket described by cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3:     client,
		bucket: cfg.Bucket,
	}, nil
}

// Health verifies the archive bucket is reachable with the configured
// credentials.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op; the SDK's HTTP client needs no explicit teardown.
func (c *Client) Close() error {
	return nil
}

// S3 exposes the SDK client to the reader and writer in this package.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// endpointURL ensures the endpoint carries a scheme, defaulting to the one
// useSSL selects.
func endpointURL(endpoint string, useSSL bool) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
