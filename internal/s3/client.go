package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/internal/util"
)

// Config selects the bucket and credentials. Static credentials are used
// when AccessKey is set; otherwise the default AWS credential chain applies.
type Config struct {
	AccessKey       string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Bucket          string
	// Endpoint points at an S3-compatible service and switches to
	// path-style addressing.
	Endpoint string
}

// Client wraps a single bucket.
type Client struct {
	api    s3API
	bucket string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	log.Debug().
		Str("component", "s3").
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", util.RedactURL(cfg.Endpoint)).
		Msg("S3 client created")

	return newClient(s3.NewFromConfig(awsCfg, opts...), cfg.Bucket), nil
}

func newClient(api s3API, bucket string) *Client {
	return &Client{api: api, bucket: bucket}
}

func (c *Client) Bucket() string { return c.bucket }
