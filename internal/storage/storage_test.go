package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chromeserver/abc/shot.png", Key("chromeserver", "abc", "shot.png"))
	assert.Equal(t, "a/b/abc/shot.png", Key("/a/b/", "abc", "/shot.png"))
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"shot.png", "pages/1/shot.png", ".hidden", "a..b.png"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "/", "..", "../../evil.png", "a/../b.png", "./shot.png", "a/."} {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.Put(context.Background(), "k", []byte("x"), "text/plain")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewWithoutBucket(t *testing.T) {
	store, err := New(context.Background(), S3Options{Region: "eu-west-1"})
	require.NoError(t, err)
	assert.IsType(t, Unconfigured{}, store)
}

func TestS3StorePut(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client, S3Options{Bucket: "shots", Region: "eu-west-1"})

	url, err := store.Put(context.Background(), "chromeserver/id-1/error shot.png", []byte("png"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://shots.s3.eu-west-1.amazonaws.com/chromeserver/id-1/error%20shot.png", url)
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "shots", aws.ToString(client.inputs[0].Bucket))
	assert.Equal(t, "chromeserver/id-1/error shot.png", aws.ToString(client.inputs[0].Key))
	assert.Equal(t, "image/png", aws.ToString(client.inputs[0].ContentType))
	assert.Equal(t, []byte("png"), client.bodies[0])
}

func TestS3StorePublicBaseURL(t *testing.T) {
	store := NewS3Store(&fakeS3{}, S3Options{Bucket: "shots", PublicBaseURL: "https://cdn.example.com/"})
	assert.Equal(t, "https://cdn.example.com/p/id/a.png", store.URL("p/id/a.png"))
}

func TestS3StorePutError(t *testing.T) {
	store := NewS3Store(&fakeS3{err: errors.New("access denied")}, S3Options{Bucket: "shots"})

	_, err := store.Put(context.Background(), "k", nil, "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3StoreEmptyBucket(t *testing.T) {
	_, err := NewS3Store(&fakeS3{}, S3Options{}).Put(context.Background(), "k", nil, "image/png")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
