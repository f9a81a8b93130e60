package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"authgate/internal/domain"
)

// S3Options conveys where profile pictures live and how their URLs are produced.
type S3Options struct {
	Bucket    string
	KeyPrefix string
	// PublicBaseURL, when set, is joined with the object key instead of presigning.
	PublicBaseURL string
	URLExpiry     time.Duration
}

// S3Service stores profile pictures in Amazon S3 (or compatible APIs).
type S3Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	opts     S3Options
}

func NewS3Service(client *s3.Client, opts S3Options) (*S3Service, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if opts.URLExpiry <= 0 {
		opts.URLExpiry = 7 * 24 * time.Hour
	}
	opts.KeyPrefix = strings.Trim(opts.KeyPrefix, "/")
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		opts:     opts,
	}, nil
}

func (s *S3Service) objectKey(name string) string {
	file := uuid.NewString() + "-" + sanitizeName(name)
	if s.opts.KeyPrefix == "" {
		return file
	}
	return path.Join(s.opts.KeyPrefix, file)
}

func (s *S3Service) Put(ctx context.Context, name, contentType string, body io.Reader, _ int64) (*domain.ProfilePicture, error) {
	key := s.objectKey(name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	url, err := s.objectURL(ctx, key)
	if err != nil {
		return nil, err
	}
	return &domain.ProfilePicture{Name: key, URL: url}, nil
}

func (s *S3Service) objectURL(ctx context.Context, key string) (string, error) {
	if s.opts.PublicBaseURL != "" {
		return strings.TrimRight(s.opts.PublicBaseURL, "/") + "/" + key, nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.opts.URLExpiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Service) Delete(ctx context.Context, pic domain.ProfilePicture) error {
	key := strings.TrimSpace(pic.Name)
	if key == "" {
		return nil
	}
	if s.opts.KeyPrefix != "" && !strings.HasPrefix(key, s.opts.KeyPrefix+"/") {
		return fmt.Errorf("object %s is outside prefix %s", key, s.opts.KeyPrefix)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

var _ Service = (*S3Service)(nil)
