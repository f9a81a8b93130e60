package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"authgate/internal/domain"
	"authgate/internal/repository"
)

const createActivityTable = `
CREATE TABLE IF NOT EXISTS activity_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	activity_type TEXT NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	metadata TEXT NULL,
	created_at DATETIME NOT NULL
);
`

const createActivityIndex = `CREATE INDEX IF NOT EXISTS idx_activity_logs_created_at ON activity_logs (created_at);`

type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) repository.ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createActivityTable); err != nil {
		return fmt.Errorf("create activity_logs table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createActivityIndex); err != nil {
		return fmt.Errorf("create activity_logs index: %w", err)
	}
	return nil
}

func (r *ActivityRepository) Append(ctx context.Context, entry *domain.ActivityLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode activity metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO activity_logs (user_id, username, activity_type, ip_address, user_agent, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.UserID,
		entry.Username,
		string(entry.ActivityType),
		entry.IPAddress,
		entry.UserAgent,
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("activity log last insert id: %w", err)
	}
	entry.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *ActivityRepository) ListRecent(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, username, activity_type, ip_address, user_agent, metadata, created_at
FROM activity_logs
ORDER BY created_at DESC, id DESC
LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ActivityLog
	for rows.Next() {
		var (
			entry        domain.ActivityLog
			id           int64
			activityType string
			metadata     sql.NullString
		)
		if err := rows.Scan(
			&id,
			&entry.UserID,
			&entry.Username,
			&activityType,
			&entry.IPAddress,
			&entry.UserAgent,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		entry.ID = strconv.FormatInt(id, 10)
		entry.ActivityType = domain.ActivityType(activityType)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity logs: %w", err)
	}
	return entries, nil
}
