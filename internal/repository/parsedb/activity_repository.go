package parsedb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"authgate/internal/domain"
	"authgate/internal/repository"
)

// ActivityClass is the Parse class that holds audit entries.
const ActivityClass = "ActivityLog"

type objectStore interface {
	CreateObject(ctx context.Context, class string, fields map[string]any) (string, time.Time, error)
	QueryObjects(ctx context.Context, class, order string, limit int) ([]json.RawMessage, error)
}

// ActivityRepository stores audit entries as objects of a Parse class.
type ActivityRepository struct {
	objects objectStore
}

func NewActivityRepository(objects objectStore) repository.ActivityRepository {
	return &ActivityRepository{objects: objects}
}

// Init is a no-op: Parse creates the class on first write.
func (r *ActivityRepository) Init(context.Context) error {
	return nil
}

func (r *ActivityRepository) Append(ctx context.Context, entry *domain.ActivityLog) error {
	fields := map[string]any{
		"userId":       entry.UserID,
		"username":     entry.Username,
		"activityType": string(entry.ActivityType),
	}
	if entry.IPAddress != "" {
		fields["ipAddress"] = entry.IPAddress
	}
	if entry.UserAgent != "" {
		fields["userAgent"] = entry.UserAgent
	}
	if len(entry.Metadata) > 0 {
		fields["metadata"] = entry.Metadata
	}

	id, createdAt, err := r.objects.CreateObject(ctx, ActivityClass, fields)
	if err != nil {
		return fmt.Errorf("save activity log: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return nil
}

type activityObject struct {
	ObjectID     string         `json:"objectId"`
	UserID       string         `json:"userId"`
	Username     string         `json:"username"`
	ActivityType string         `json:"activityType"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.objects.QueryObjects(ctx, ActivityClass, "-createdAt", limit)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}

	entries := make([]domain.ActivityLog, 0, len(raw))
	for _, item := range raw {
		var obj activityObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("decode activity log: %w", err)
		}
		entries = append(entries, domain.ActivityLog{
			ID:           obj.ObjectID,
			UserID:       obj.UserID,
			Username:     obj.Username,
			ActivityType: domain.ActivityType(obj.ActivityType),
			IPAddress:    obj.IPAddress,
			UserAgent:    obj.UserAgent,
			Metadata:     obj.Metadata,
			CreatedAt:    obj.CreatedAt,
		})
	}
	return entries, nil
}
