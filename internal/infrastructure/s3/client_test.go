package s3infra

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-equity-auth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	err     error
	lastKey string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.lastKey = aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestFetch(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"templates/two_factor_code.html": "<p>{{.Code}}</p>"}}
	src := NewTemplateSource(api, "bucket", "templates/")

	b, err := src.Fetch(context.Background(), "two_factor_code.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>{{.Code}}</p>", string(b))
	assert.Equal(t, "bucket/templates/two_factor_code.html", api.lastKey)
}

func TestFetch_MissingKey(t *testing.T) {
	src := NewTemplateSource(&fakeS3{}, "bucket", "templates")
	_, err := src.Fetch(context.Background(), "two_factor_code.txt")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetch_TransportError(t *testing.T) {
	src := NewTemplateSource(&fakeS3{err: errors.New("timeout")}, "bucket", "")
	_, err := src.Fetch(context.Background(), "x.html")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestFetch_TooLarge(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"big.html": strings.Repeat("a", maxTemplateSize+1)}}
	_, err := NewTemplateSource(api, "bucket", "").Fetch(context.Background(), "big.html")
	assert.ErrorContains(t, err, "exceeds")
}
