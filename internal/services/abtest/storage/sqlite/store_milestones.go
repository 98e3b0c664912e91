package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MarkMilestone records a one-shot milestone flag. It returns true when this
// call was the first sighting and false when the flag was already set.
func (s *Store) MarkMilestone(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("milestone name is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO milestones (name, seen_at) VALUES (?, ?)`,
		name,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("mark milestone: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark milestone count: %w", err)
	}
	return inserted > 0, nil
}

// SeenMilestones returns every recorded milestone name, ordered by name.
func (s *Store) SeenMilestones(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM milestones ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("seen milestones: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("seen milestones: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("seen milestones: %w", err)
	}
	return names, nil
}
