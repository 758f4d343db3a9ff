package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	body    []byte
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestGetContentTypeForImage(t *testing.T) {
	tests := []struct {
		extension string
		expected  string
	}{
		{".jpg", "image/jpeg"},
		{".JPEG", "image/jpeg"},
		{".png", "image/png"},
		{".gif", "image/gif"},
		{".WEBP", "image/webp"},
		{".bmp", "application/octet-stream"},
		{"", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.extension, func(t *testing.T) {
			assert.Equal(t, tt.expected, getContentTypeForImage(tt.extension))
		})
	}
}

func TestImageKeyLayout(t *testing.T) {
	key, contentType, err := ImageKey(pngHeader, "u1", KindAvatar, "me.PNG")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.True(t, strings.HasPrefix(key, "images/avatar/u1/"), key)
	assert.True(t, strings.HasSuffix(key, ".png"), key)

	// extension sniffed when the name has none
	key, _, err = ImageKey(pngHeader, "club9", KindClub, "upload")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, ".png"), key)
}

func TestImageKeyRejects(t *testing.T) {
	_, _, err := ImageKey(pngHeader, "u1", "banner", "a.png")
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, _, err = ImageKey(pngHeader, "../etc", KindCover, "a.png")
	assert.ErrorIs(t, err, ErrInvalidOwner)

	_, _, err = ImageKey(nil, "u1", KindCover, "a.png")
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, _, err = ImageKey(make([]byte, MaxImageSize+1), "u1", KindCover, "a.png")
	assert.ErrorIs(t, err, ErrImageTooBig)

	_, _, err = ImageKey([]byte("just some text"), "u1", KindCover, "notes.png")
	assert.ErrorIs(t, err, ErrNotAnImage)
}

func TestS3UploadImage(t *testing.T) {
	fake := &fakeS3{}
	u := newS3Uploader(fake, "sa-east-1", "cinesync-media", "https://cdn.example.com/")

	res, err := u.UploadImage(context.Background(), pngHeader, "u1", KindCover, "cover.png")
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, res.Key, *fake.puts[0].Key)
	assert.Equal(t, "cinesync-media", *fake.puts[0].Bucket)
	assert.Equal(t, "image/png", *fake.puts[0].ContentType)
	assert.Equal(t, "u1", fake.puts[0].Metadata["owner"])
	assert.Equal(t, pngHeader, fake.body)
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
	assert.Equal(t, int64(len(pngHeader)), res.Size)

	require.NoError(t, u.DeleteFile(context.Background(), res.Key))
	assert.Equal(t, []string{res.Key}, fake.deletes)
}

func TestS3UploadFailure(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	u := newS3Uploader(fake, "sa-east-1", "b", "https://cdn")

	_, err := u.UploadImage(context.Background(), pngHeader, "u1", KindAvatar, "a.png")
	assert.ErrorContains(t, err, "access denied")
	assert.Error(t, u.CheckBucketAccess(context.Background()))
}

func TestMemoryUploader(t *testing.T) {
	m := NewMemoryUploader("http://localhost:8787/media")
	res, err := m.UploadImage(context.Background(), pngHeader, "u1", KindAvatar, "a.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, "http://localhost:8787/media/images/avatar/u1/"))

	data, ok := m.Object(res.Key)
	assert.True(t, ok)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, m.DeleteFile(context.Background(), res.Key))
	_, ok = m.Object(res.Key)
	assert.False(t, ok)
}
