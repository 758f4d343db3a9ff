package storage

import (
	"context"
)

// ImageUploader stores profile and club images. Handlers depend on this so
// tests can swap in MemoryUploader.
type ImageUploader interface {
	UploadImage(ctx context.Context, data []byte, owner, kind, filename string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
}

var (
	_ ImageUploader = (*S3Uploader)(nil)
	_ ImageUploader = (*MemoryUploader)(nil)
)
