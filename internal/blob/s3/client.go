// Package s3blob implements the domain blob interfaces over AWS SDK v2 for
// the event archive. Applied contract events are batched into JSONL objects
// under the archive prefix so an operator can replay or audit the indexed
// history without a chain node. Deployments typically point Endpoint at a
// local MinIO for development and leave it empty for AWS S3 in production.
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

// ClientConfig holds connection parameters for the archive bucket. The zero
// Endpoint targets AWS S3; any S3-compatible store works by setting it, e.g.
// "http://localhost:9000" for MinIO (see config.example.toml).
type ClientConfig struct {
	// Endpoint overrides the S3 endpoint URL. Empty means AWS S3.
	Endpoint string

	// Region is required by the SDK even when Endpoint points at a store
	// that ignores it; MinIO accepts any value.
	Region string

	// Bucket holds the archive objects. Everything this package writes and
	// reads lives in this one bucket.
	Bucket string

	AccessKey string
	SecretKey string

	// UseSSL picks https when Endpoint is given without a scheme.
	UseSSL bool

	// ForcePathStyle switches to path-style addressing. MinIO needs this
	// unless virtual-host DNS is configured.
	ForcePathStyle bool
}

// Client holds the SDK client and the archive bucket name. Reader, Writer,
// and the event archiver are all built on top of it.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds the S3 client from static credentials. It does not touch the
// network; call Health to probe the bucket. Endpoint and path-style settings
// are applied as per-client options so the global AWS config stays untouched.
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
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
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

// Health checks that the archive bucket exists and the credentials can reach
// it, via HeadBucket.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close exists for symmetry with the other backends; the SDK's HTTP client
// needs no teardown.
func (c *Client) Close() error {
	return nil
}

// S3 exposes the raw SDK client to the reader and writer in this package.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the archive bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// withScheme prepends http:// or https:// when the configured endpoint lacks
// a scheme, so "localhost:9000" works as shorthand.
func withScheme(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
