package gallery

import (
	"context"
	"fmt"

	"imagine-chat/internal/cache"
	"imagine-chat/internal/querykey"
	"imagine-chat/internal/repository/db"
)

// GalleryService lists the images an owner has generated
type GalleryService struct {
	db    db.Database
	store *cache.Store
	limit int
}

// NewGalleryService creates a new GalleryService
func NewGalleryService(database db.Database, store *cache.Store, limit int) *GalleryService {
	if limit <= 0 {
		limit = 100
	}
	return &GalleryService{db: database, store: store, limit: limit}
}

// List returns the owner's most recent images, newest first
func (s *GalleryService) List(ctx context.Context, ownerID string) ([]db.Image, error) {
	v, err := s.store.Fetch(ctx, querykey.Gallery(ownerID), func(ctx context.Context) (cache.Value, error) {
		images, err := s.db.ListImages(ctx, ownerID, s.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve images: %w", err)
		}
		return cache.GalleryList{Images: images}, nil
	})
	if err != nil && v == nil {
		return nil, err
	}

	images := v.(cache.GalleryList).Images
	if images == nil {
		images = []db.Image{}
	}
	return images, nil
}
