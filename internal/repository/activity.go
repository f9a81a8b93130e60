package repository

import (
	"context"

	"authgate/internal/domain"
)

// ActivityRepository persists audit entries. Entries are never updated or removed.
type ActivityRepository interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, entry *domain.ActivityLog) error
	ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error)
}
