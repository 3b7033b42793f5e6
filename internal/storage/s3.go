package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the part of the S3 client the store needs
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Store
type S3Options struct {
	Bucket string
	Region string
	// PublicBaseURL overrides the virtual-hosted bucket URL, e.g. a CDN in front of the bucket
	PublicBaseURL string
}

// S3Store uploads artifacts to an S3 bucket
type S3Store struct {
	client S3API
	opts   S3Options
}

// NewS3Store creates a store backed by client
func NewS3Store(client S3API, opts S3Options) *S3Store {
	return &S3Store{client: client, opts: opts}
}

// New returns an S3 store using the default AWS credential chain, or
// Unconfigured when bucket is empty
func New(ctx context.Context, opts S3Options) (Store, error) {
	if opts.Bucket == "" {
		return Unconfigured{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewS3Store(s3.NewFromConfig(awsCfg), opts), nil
}

// Put uploads payload with a public-read ACL and returns its URL
func (s *S3Store) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	if s.opts.Bucket == "" {
		return "", ErrNotConfigured
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return s.URL(key), nil
}

// URL is the public location of key
func (s *S3Store) URL(key string) string {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + escapeKey(key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, escapeKey(key))
}
