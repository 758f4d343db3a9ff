package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apierrors "github.com/cinesync/backend/internal/errors"
	"github.com/cinesync/backend/internal/telemetry"
)

// Image kinds
const (
	KindAvatar = "avatar"
	KindCover  = "cover"
	KindClub   = "club"
)

// MaxImageSize bounds a single upload
const MaxImageSize = 5 << 20

var (
	ErrInvalidKind     = apierrors.NewField("kind", "image kind must be avatar, cover or club")
	ErrEmptyImage      = apierrors.NewField("file", "image is empty")
	ErrImageTooBig     = apierrors.NewField("file", "image exceeds 5 MB")
	ErrNotAnImage      = apierrors.NewField("file", "file is not a supported image")
	ErrInvalidOwner    = apierrors.NewField("owner", "owner is required")
	// ErrUploadsDisabled is returned by handlers when no image store is configured
	ErrUploadsDisabled = apierrors.New(apierrors.ErrServiceUnavail, "image uploads are not configured")
)

// objectAPI is the part of the S3 client the uploader calls
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Uploader handles image uploads to AWS S3
type S3Uploader struct {
	client  objectAPI
	bucket  string
	region  string
	baseURL string
	now     func() time.Time
}

// UploadResult contains the result of an upload
type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Bucket      string `json:"bucket"`
	Region      string `json:"region"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// NewS3Uploader creates a new S3 uploader. baseURL defaults to the bucket's
// public endpoint.
func NewS3Uploader(ctx context.Context, region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return newS3Uploader(s3.NewFromConfig(cfg), region, bucket, baseURL), nil
}

func newS3Uploader(client objectAPI, region, bucket, baseURL string) *S3Uploader {
	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}
}

// ImageKey validates an upload and returns its object key
// images/{kind}/{owner}/{uuid}{ext} and content type
func ImageKey(data []byte, owner, kind, filename string) (key, contentType string, err error) {
	switch kind {
	case KindAvatar, KindCover, KindClub:
	default:
		return "", "", ErrInvalidKind
	}
	if owner == "" || strings.ContainsAny(owner, "/\\") {
		return "", "", ErrInvalidOwner
	}
	if len(data) == 0 {
		return "", "", ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return "", "", ErrImageTooBig
	}

	ext := strings.ToLower(filepath.Ext(filename))
	contentType = getContentTypeForImage(ext)
	sniffed := http.DetectContentType(data)
	if contentType == "application/octet-stream" {
		contentType = sniffed
		ext = extensionFor(sniffed)
	}
	if ext == "" || !strings.HasPrefix(sniffed, "image/") {
		return "", "", ErrNotAnImage
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return fmt.Sprintf("images/%s/%s/%s%s", kind, owner, uuid.New().String(), ext), contentType, nil
}

// UploadImage stores an avatar, cover or club photo
func (u *S3Uploader) UploadImage(ctx context.Context, data []byte, owner, kind, filename string) (_ *UploadResult, err error) {
	key, contentType, err := ImageKey(data, owner, kind, filename)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.TraceExternalCall(ctx, "s3", "put_object",
		attribute.String("s3.key", key), attribute.Int("s3.size", len(data)))
	defer func() { telemetry.End(span, err) }()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),

		// keys are unique per upload
		CacheControl: aws.String("public, max-age=31536000, immutable"),
		Metadata: map[string]string{
			"owner":             owner,
			"kind":              kind,
			"original-filename": filename,
			"upload-timestamp":  u.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		Key:         key,
		URL:         u.baseURL + "/" + key,
		Bucket:      u.bucket,
		Region:      u.region,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

// DeleteFile deletes a file from S3
func (u *S3Uploader) DeleteFile(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}
	return nil
}

func getContentTypeForImage(extension string) string {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// MemoryUploader keeps uploads in memory. Used when no bucket is configured
// and in tests.
type MemoryUploader struct {
	baseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryUploader creates an in-memory uploader serving URLs under baseURL
func NewMemoryUploader(baseURL string) *MemoryUploader {
	return &MemoryUploader{baseURL: strings.TrimSuffix(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *MemoryUploader) UploadImage(ctx context.Context, data []byte, owner, kind, filename string) (*UploadResult, error) {
	key, contentType, err := ImageKey(data, owner, kind, filename)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), data...)
	m.mu.Unlock()
	return &UploadResult{Key: key, URL: m.baseURL + "/" + key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (m *MemoryUploader) DeleteFile(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Object returns a stored upload
func (m *MemoryUploader) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
