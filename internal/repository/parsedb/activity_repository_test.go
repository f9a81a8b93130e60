package parsedb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/domain"
)

type fakeObjects struct {
	class   string
	fields  map[string]any
	order   string
	limit   int
	results []json.RawMessage
	err     error
}

func (f *fakeObjects) CreateObject(_ context.Context, class string, fields map[string]any) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	f.class, f.fields = class, fields
	return "obj1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), nil
}

func (f *fakeObjects) QueryObjects(_ context.Context, class, order string, limit int) ([]json.RawMessage, error) {
	f.class, f.order, f.limit = class, order, limit
	return f.results, f.err
}

func TestAppend_OmitsEmptyOptionalFields(t *testing.T) {
	objects := &fakeObjects{}
	repo := NewActivityRepository(objects)

	entry := &domain.ActivityLog{UserID: "u1", Username: "alice", ActivityType: domain.ActivityLogin}
	require.NoError(t, repo.Append(context.Background(), entry))

	assert.Equal(t, ActivityClass, objects.class)
	assert.Equal(t, map[string]any{
		"userId":       "u1",
		"username":     "alice",
		"activityType": "login",
	}, objects.fields)
	assert.Equal(t, "obj1", entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestAppend_WrapsError(t *testing.T) {
	repo := NewActivityRepository(&fakeObjects{err: errors.New("boom")})
	err := repo.Append(context.Background(), &domain.ActivityLog{UserID: "u1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestListRecent_DecodesObjects(t *testing.T) {
	objects := &fakeObjects{results: []json.RawMessage{
		json.RawMessage(`{"objectId":"a","userId":"u1","username":"alice","activityType":"user_delete","metadata":{"targetUserId":"u9"},"createdAt":"2024-05-02T00:00:00.000Z"}`),
		json.RawMessage(`{"objectId":"b","userId":"u2","activityType":"login","ipAddress":"1.2.3.4"}`),
	}}
	repo := NewActivityRepository(objects)

	entries, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "-createdAt", objects.order)
	assert.Equal(t, 100, objects.limit)

	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActivityUserDelete, entries[0].ActivityType)
	assert.Equal(t, "u9", entries[0].Metadata["targetUserId"])
	assert.Equal(t, "1.2.3.4", entries[1].IPAddress)
}
