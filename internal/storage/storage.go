package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
	// BaseURL is the public prefix objects are served from.
	BaseURL() string
}

// ErrUnsupportedMediaType is returned for uploads that are not images.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/gif":  true,
}

// Photo is an uploaded complaint photo.
type Photo struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// PhotoStore uploads complaint photos and returns their public reference.
type PhotoStore struct {
	backend       ObjectStorage
	publicBaseURL string
	now           func() time.Time
}

// NewPhotoStore wraps backend. publicBaseURL overrides the backend's own
// URL prefix when set, as when a CDN fronts the bucket.
func NewPhotoStore(backend ObjectStorage, publicBaseURL string) *PhotoStore {
	return &PhotoStore{
		backend:       backend,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		now:           time.Now,
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *PhotoStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// PutPhoto stores a photo under the owner's prefix.
func (s *PhotoStore) PutPhoto(ctx context.Context, owner uuid.UUID, filename string, r io.Reader, size int64, contentType string) (Photo, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedPhotoTypes[contentType] {
		return Photo{}, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
	}

	key := PhotoKey(owner, filename, s.now())
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return Photo{}, fmt.Errorf("put photo %s: %w", key, err)
	}
	return Photo{
		Key:         key,
		URL:         s.URL(key),
		ContentType: contentType,
		Size:        size,
	}, nil
}

// Delete removes a stored photo.
func (s *PhotoStore) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// URL returns the public reference of key.
func (s *PhotoStore) URL(key string) string {
	base := s.publicBaseURL
	if base == "" {
		base = strings.TrimRight(s.backend.BaseURL(), "/")
	}
	return base + "/" + key
}

// PhotoKey builds "<owner>/<unix millis>-<sanitized name>".
func PhotoKey(owner uuid.UUID, filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = "photo"
	}
	return fmt.Sprintf("%s/%d-%s", owner, at.UnixMilli(), name)
}

// New opens the backend selected by cfg. It returns nil when photo
// storage is disabled.
func New(ctx context.Context, cfg config.StorageConfig) (*PhotoStore, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewPhotoStore(backend, cfg.PublicBaseURL), nil
}
