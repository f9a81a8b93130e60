package storage

import (
	"context"
	"fmt"
	"io"

	"authgate/internal/domain"
)

type fileBackend interface {
	UploadFile(ctx context.Context, name, contentType string, body io.Reader) (string, string, error)
	DeleteFile(ctx context.Context, name string) error
}

// ParseService keeps profile pictures in the backend's own file storage.
type ParseService struct {
	files fileBackend
}

func NewParseService(files fileBackend) *ParseService {
	return &ParseService{files: files}
}

func (s *ParseService) Put(ctx context.Context, name, contentType string, body io.Reader, _ int64) (*domain.ProfilePicture, error) {
	storedName, url, err := s.files.UploadFile(ctx, sanitizeName(name), contentType, body)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	return &domain.ProfilePicture{Name: storedName, URL: url}, nil
}

func (s *ParseService) Delete(ctx context.Context, pic domain.ProfilePicture) error {
	if pic.Name == "" {
		return nil
	}
	if err := s.files.DeleteFile(ctx, pic.Name); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

var _ Service = (*ParseService)(nil)
