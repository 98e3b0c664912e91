package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

// AppendEvent writes one immutable behavioral event and returns its row id.
func (s *Store) AppendEvent(ctx context.Context, event domain.Event) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	contentRef := strings.TrimSpace(event.ContentRef)
	experimentID := strings.TrimSpace(event.ExperimentID)
	if contentRef == "" {
		return 0, fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return 0, fmt.Errorf("experiment id is required")
	}
	if !event.Kind.IsValid() {
		return 0, fmt.Errorf("event kind %q is not valid", event.Kind)
	}
	if event.Kind.RequiresVariant() && !event.Variant.IsValid() {
		return 0, fmt.Errorf("event kind %q requires a variant", event.Kind)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO events (time, content_ref, experiment_id, variant, kind, ip, user_agent)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		toMillis(event.Time),
		contentRef,
		experimentID,
		string(event.Variant),
		string(event.Kind),
		event.IP,
		event.UserAgent,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append event id: %w", err)
	}
	return id, nil
}

// CountEvents recomputes the per-variant impression and click tallies for
// one experiment from the journal.
func (s *Store) CountEvents(ctx context.Context, contentRef, experimentID string) (storage.VariantCounts, error) {
	if err := ctx.Err(); err != nil {
		return storage.VariantCounts{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.VariantCounts{}, fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	experimentID = strings.TrimSpace(experimentID)
	if contentRef == "" {
		return storage.VariantCounts{}, fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return storage.VariantCounts{}, fmt.Errorf("experiment id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT variant, kind, COUNT(*)
		 FROM events
		 WHERE content_ref = ? AND experiment_id = ? AND kind IN (?, ?)
		 GROUP BY variant, kind`,
		contentRef,
		experimentID,
		string(domain.KindImpression),
		string(domain.KindClick),
	)
	if err != nil {
		return storage.VariantCounts{}, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts, err := scanVariantCounts(rows)
	if err != nil {
		return storage.VariantCounts{}, fmt.Errorf("count events: %w", err)
	}
	return counts, nil
}

// CountEventsMany recomputes tallies for several experiments under one
// content ref in a single query. Experiments with no events map to zero
// tallies.
func (s *Store) CountEventsMany(ctx context.Context, contentRef string, experimentIDs []string) (map[string]storage.VariantCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	if contentRef == "" {
		return nil, fmt.Errorf("content ref is required")
	}

	result := make(map[string]storage.VariantCounts, len(experimentIDs))
	ids := make([]string, 0, len(experimentIDs))
	for _, id := range experimentIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := result[id]; ok {
			continue
		}
		result[id] = storage.VariantCounts{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+3)
	args = append(args, contentRef)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(domain.KindImpression), string(domain.KindClick))

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT experiment_id, variant, kind, COUNT(*)
		 FROM events
		 WHERE content_ref = ? AND experiment_id IN (`+placeholders+`) AND kind IN (?, ?)
		 GROUP BY experiment_id, variant, kind`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("count events many: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			experimentID string
			variant      string
			kind         string
			count        int64
		)
		if err := rows.Scan(&experimentID, &variant, &kind, &count); err != nil {
			return nil, fmt.Errorf("count events many: %w", err)
		}
		counts := result[experimentID]
		applyTally(&counts, variant, kind, count)
		result[experimentID] = counts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count events many: %w", err)
	}
	return result, nil
}

// PurgeEvents deletes every event for one experiment and returns the number
// of rows removed.
func (s *Store) PurgeEvents(ctx context.Context, contentRef, experimentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	experimentID = strings.TrimSpace(experimentID)
	if contentRef == "" {
		return 0, fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return 0, fmt.Errorf("experiment id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM events WHERE content_ref = ? AND experiment_id = ?`,
		contentRef,
		experimentID,
	)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge events count: %w", err)
	}
	return deleted, nil
}

func scanVariantCounts(rows *sql.Rows) (storage.VariantCounts, error) {
	var counts storage.VariantCounts
	for rows.Next() {
		var (
			variant string
			kind    string
			count   int64
		)
		if err := rows.Scan(&variant, &kind, &count); err != nil {
			return storage.VariantCounts{}, err
		}
		applyTally(&counts, variant, kind, count)
	}
	if err := rows.Err(); err != nil {
		return storage.VariantCounts{}, err
	}
	return counts, nil
}

func applyTally(counts *storage.VariantCounts, variant, kind string, count int64) {
	var tally *storage.VariantTally
	switch domain.Variant(variant) {
	case domain.VariantA:
		tally = &counts.A
	case domain.VariantB:
		tally = &counts.B
	default:
		return
	}
	switch domain.Kind(kind) {
	case domain.KindImpression:
		tally.Impressions += count
	case domain.KindClick:
		tally.Clicks += count
	}
}
