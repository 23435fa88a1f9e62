package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Save(ctx, "c1/visit.mp3", []byte("ID3"), "audio/mpeg")
	require.NoError(t, err)

	data, err := s.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Load(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, ref))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(context.Background(), "../../etc/passwd", []byte("x"), "text/plain")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	s := NewS3Store(&fakeS3{objects: map[string][]byte{}}, "recordings")
	ctx := context.Background()

	ref, err := s.Save(ctx, "c1/a.wav", []byte("RIFF"), "audio/wav")
	require.NoError(t, err)

	data, err := s.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)

	require.NoError(t, s.Delete(ctx, ref))
	_, err = s.Load(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}
