// Package blob stores comment attachments in an S3-compatible bucket.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config locates the bucket attachments are written to.
type Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint and enables path-style addressing
	// (MinIO and similar).
	Endpoint string
	// PublicBaseURL is the prefix of the URLs handed out for stored objects,
	// e.g. a CDN in front of the bucket.
	PublicBaseURL string
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// S3 is a widget.BlobStore backed by S3.
type S3 struct {
	client *s3.Client
	cfg    Config
}

// NewS3 creates an S3 blob store.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		cfg:    cfg,
	}, nil
}

// Put uploads body under key and returns its public URL. An existing object
// with the same key is overwritten.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	// Request signing over plain HTTP needs a seekable body.
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read attachment: %w", err)
		}
		rs = bytes.NewReader(data)
		size = int64(len(data))
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        rs,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return s.URL(key), nil
}

// URL returns the public URL of an object.
func (s *S3) URL(key string) string {
	escaped := escapeKey(key)
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + escaped
	case s.cfg.Endpoint != "":
		return strings.TrimRight(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
