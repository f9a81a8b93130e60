package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain"
)

type fakeFiles struct {
	uploadedName string
	uploadedType string
	uploadedBody string
	deleted      []string
	uploadErr    error
}

func (f *fakeFiles) UploadFile(_ context.Context, name, contentType string, body io.Reader) (string, string, error) {
	if f.uploadErr != nil {
		return "", "", f.uploadErr
	}
	b, _ := io.ReadAll(body)
	f.uploadedName, f.uploadedType, f.uploadedBody = name, contentType, string(b)
	return "tfss-" + name, "https://files.example/tfss-" + name, nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"avatar.png":          "avatar.png",
		"../../etc/passwd":    "passwd",
		"my photo (1).jpg":    "my_photo_1.jpg",
		"":                    "upload",
		"...":                 "upload",
		"ünïcode.gif":         "ncode.gif",
		"/tmp/.hidden.jpeg":   "hidden.jpeg",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeName(in), "input %q", in)
	}
}

func TestParseService_PutAndDelete(t *testing.T) {
	files := &fakeFiles{}
	svc := NewParseService(files)

	pic, err := svc.Put(context.Background(), "me.png", "image/png", strings.NewReader("data"), 4)
	require.NoError(t, err)
	assert.Equal(t, "tfss-me.png", pic.Name)
	assert.Equal(t, "https://files.example/tfss-me.png", pic.URL)
	assert.Equal(t, "image/png", files.uploadedType)
	assert.Equal(t, "data", files.uploadedBody)

	require.NoError(t, svc.Delete(context.Background(), *pic))
	require.NoError(t, svc.Delete(context.Background(), domain.ProfilePicture{}))
	assert.Equal(t, []string{"tfss-me.png"}, files.deleted)
}

func TestParseService_PutError(t *testing.T) {
	svc := NewParseService(&fakeFiles{uploadErr: errors.New("quota exceeded")})
	_, err := svc.Put(context.Background(), "me.png", "image/png", strings.NewReader("data"), 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

type recordedRequest struct {
	method string
	path   string
	body   string
}

func newFakeS3(t *testing.T) (*s3.Client, func() []recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{method: r.Method, path: r.URL.Path, body: string(b)})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return client, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestNewS3Service_RequiresBucket(t *testing.T) {
	client, _ := newFakeS3(t)
	_, err := NewS3Service(client, S3Options{})
	require.Error(t, err)
}

func TestS3Service_PutUsesPublicBaseURL(t *testing.T) {
	client, requests := newFakeS3(t)
	svc, err := NewS3Service(client, S3Options{
		Bucket:        "avatars",
		KeyPrefix:     "/profile-pictures/",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)

	pic, err := svc.Put(context.Background(), "me.png", "image/png", strings.NewReader("png-bytes"), 9)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(pic.Name, "profile-pictures/"))
	assert.True(t, strings.HasSuffix(pic.Name, "-me.png"))
	assert.Equal(t, "https://cdn.example.com/"+pic.Name, pic.URL)

	reqs := requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, http.MethodPut, reqs[0].method)
	assert.Equal(t, "/avatars/"+pic.Name, reqs[0].path)
}

func TestS3Service_PresignsWhenNoPublicURL(t *testing.T) {
	client, _ := newFakeS3(t)
	svc, err := NewS3Service(client, S3Options{Bucket: "avatars", URLExpiry: time.Hour})
	require.NoError(t, err)

	url, err := svc.objectURL(context.Background(), "k/me.png")
	require.NoError(t, err)
	assert.Contains(t, url, "/avatars/k/me.png")
	assert.Contains(t, url, "X-Amz-Expires=3600")
}

func TestS3Service_DeleteRespectsPrefix(t *testing.T) {
	client, requests := newFakeS3(t)
	svc, err := NewS3Service(client, S3Options{Bucket: "avatars", KeyPrefix: "profile-pictures"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), domain.ProfilePicture{Name: "tfss-legacy.png"})
	require.Error(t, err)
	assert.Empty(t, requests())

	require.NoError(t, svc.Delete(context.Background(), domain.ProfilePicture{Name: "profile-pictures/abc-me.png"}))
	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].method)
	assert.Equal(t, "/avatars/profile-pictures/abc-me.png", reqs[0].path)
}
