package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/marketing-pulse/internal/config"
)

// S3Mirror uploads each written artifact to S3 so a hosted dashboard can
// read it without access to the batch host's filesystem.
type S3Mirror struct {
	client *s3.Client
	bucket string
}

// NewS3Mirror creates an S3-backed artifact mirror. Explicit keys in the
// storage config take precedence; otherwise the default credential chain
// (IAM role, profile) is used.
func NewS3Mirror(ctx context.Context, cfg config.StorageConfig) (*S3Mirror, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.AWSKey != "" && cfg.AWSSecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSKey, cfg.AWSSecret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for artifact mirror: %w", err)
	}

	return &S3Mirror{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
	}, nil
}

// Put writes the artifact bytes to the bucket under key, and again under the
// fixed "reports/latest.json" key the hosted dashboard polls.
func (m *S3Mirror) Put(ctx context.Context, key string, body []byte) error {
	for _, k := range []string{key, "reports/latest.json"} {
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(m.bucket),
			Key:         aws.String(k),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("S3 PutObject %s/%s: %w", m.bucket, k, err)
		}
	}
	return nil
}
