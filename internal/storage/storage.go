package storage

import (
	"context"
	"io"

	"authgate/internal/domain"
)

// Service stores profile pictures and hands back a reference the user record can keep.
type Service interface {
	Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (*domain.ProfilePicture, error)
	Delete(ctx context.Context, pic domain.ProfilePicture) error
}
