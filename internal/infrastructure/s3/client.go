package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-equity-auth/internal/domain"
)

// maxTemplateSize bounds a single template object.
const maxTemplateSize = 256 << 10

// NewClient creates an S3 client. When endpoint is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpoint string) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// GetObjectAPI is the subset of the S3 client used by TemplateSource.
type GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// TemplateSource reads email template overrides from bucket/prefix.
type TemplateSource struct {
	client GetObjectAPI
	bucket string
	prefix string
}

func NewTemplateSource(client GetObjectAPI, bucket, prefix string) *TemplateSource {
	return &TemplateSource{client: client, bucket: bucket, prefix: prefix}
}

// Fetch returns the object body, or domain.ErrNotFound when the key does
// not exist.
func (s *TemplateSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3 template %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxTemplateSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3 read object: %w", err)
	}
	if len(b) > maxTemplateSize {
		return nil, fmt.Errorf("s3 template %s exceeds %d bytes", key, maxTemplateSize)
	}
	return b, nil
}
