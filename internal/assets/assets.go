// Package assets stores binary media and records its metadata.
package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"news_crawler/internal/domain"
)

// File describes a local file handed to the asset store.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// BlobStore persists raw bytes under a key and returns their location URI.
type BlobStore interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

type Repository interface {
	Create(ctx context.Context, asset *domain.Asset) (int64, error)
}

type Store struct {
	blobs         BlobStore
	repo          Repository
	publicBaseURL string
	now           func() time.Time
}

func NewStore(blobs BlobStore, repo Repository, publicBaseURL string) *Store {
	return &Store{
		blobs:         blobs,
		repo:          repo,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		now:           time.Now,
	}
}

// Upload copies f into blob storage and records it, returning the stored asset.
func (s *Store) Upload(ctx context.Context, f File) (*domain.Asset, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("file name is required")
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	key := s.objectKey(f.Name)
	location, err := s.blobs.PutObject(ctx, key, f.ContentType, file)
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	asset := &domain.Asset{
		Name: f.Name,
		Key:  key,
		URL:  s.publicURL(key, location),
		Mime: f.ContentType,
		Size: f.Size,
	}

	id, err := s.repo.Create(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("record asset: %w", err)
	}
	asset.ID = id

	return asset, nil
}

func (s *Store) objectKey(name string) string {
	return path.Join(s.now().UTC().Format("2006/01"), uuid.NewString()+"-"+name)
}

func (s *Store) publicURL(key, location string) string {
	if s.publicBaseURL == "" {
		return location
	}
	return s.publicBaseURL + "/" + key
}
