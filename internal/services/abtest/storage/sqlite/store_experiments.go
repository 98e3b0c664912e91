package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

const experimentColumns = `content_ref, experiment_id, group_key, variant_a, variant_b,
	 conversion_sources, click_capable, state, winner, started_at, finished_at`

// PutExperiment upserts one experiment lifecycle record.
func (s *Store) PutExperiment(ctx context.Context, experiment domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	contentRef := strings.TrimSpace(experiment.ContentRef)
	experimentID := strings.TrimSpace(experiment.ID)
	if contentRef == "" {
		return fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if !experiment.State.IsValid() {
		return fmt.Errorf("experiment state %q is not valid", experiment.State)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO experiments (`+experimentColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(content_ref, experiment_id) DO UPDATE SET
		   group_key = excluded.group_key,
		   variant_a = excluded.variant_a,
		   variant_b = excluded.variant_b,
		   conversion_sources = excluded.conversion_sources,
		   click_capable = excluded.click_capable,
		   state = excluded.state,
		   winner = excluded.winner,
		   started_at = excluded.started_at,
		   finished_at = excluded.finished_at,
		   updated_at = excluded.updated_at`,
		contentRef,
		experimentID,
		experiment.GroupKey,
		experiment.VariantA,
		experiment.VariantB,
		joinSources(experiment.ConversionSources),
		boolToInt(experiment.ClickCapable),
		string(experiment.State),
		string(experiment.Winner),
		toMillis(experiment.StartedAt),
		toMillis(experiment.FinishedAt),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put experiment: %w", err)
	}
	return nil
}

// GetExperiment returns one experiment lifecycle record.
func (s *Store) GetExperiment(ctx context.Context, contentRef, experimentID string) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Experiment{}, fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	experimentID = strings.TrimSpace(experimentID)
	if contentRef == "" {
		return domain.Experiment{}, fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return domain.Experiment{}, fmt.Errorf("experiment id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+experimentColumns+`
		 FROM experiments
		 WHERE content_ref = ? AND experiment_id = ?`,
		contentRef,
		experimentID,
	)
	experiment, err := scanExperiment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Experiment{}, storage.ErrNotFound
		}
		return domain.Experiment{}, fmt.Errorf("get experiment: %w", err)
	}
	return experiment, nil
}

// ListExperimentsByGroup returns every experiment under the content ref
// sharing the given group key, ordered by experiment id.
func (s *Store) ListExperimentsByGroup(ctx context.Context, contentRef, groupKey string) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	groupKey = strings.TrimSpace(groupKey)
	if contentRef == "" {
		return nil, fmt.Errorf("content ref is required")
	}
	if groupKey == "" {
		return nil, fmt.Errorf("group key is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+experimentColumns+`
		 FROM experiments
		 WHERE content_ref = ? AND group_key = ?
		 ORDER BY experiment_id ASC`,
		contentRef,
		groupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list experiments by group: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	for rows.Next() {
		experiment, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("list experiments by group: %w", err)
		}
		experiments = append(experiments, experiment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list experiments by group: %w", err)
	}
	return experiments, nil
}

// DeleteExperiment removes one experiment lifecycle record.
func (s *Store) DeleteExperiment(ctx context.Context, contentRef, experimentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	contentRef = strings.TrimSpace(contentRef)
	experimentID = strings.TrimSpace(experimentID)
	if contentRef == "" {
		return fmt.Errorf("content ref is required")
	}
	if experimentID == "" {
		return fmt.Errorf("experiment id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM experiments WHERE content_ref = ? AND experiment_id = ?`,
		contentRef,
		experimentID,
	)
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (domain.Experiment, error) {
	var (
		experiment   domain.Experiment
		sources      string
		clickCapable int64
		state        string
		winner       string
		startedAt    int64
		finishedAt   int64
	)
	err := row.Scan(
		&experiment.ContentRef,
		&experiment.ID,
		&experiment.GroupKey,
		&experiment.VariantA,
		&experiment.VariantB,
		&sources,
		&clickCapable,
		&state,
		&winner,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return domain.Experiment{}, err
	}
	experiment.ConversionSources = splitSources(sources)
	experiment.ClickCapable = clickCapable != 0
	experiment.State = domain.State(state)
	experiment.Winner = domain.Variant(winner)
	experiment.StartedAt = fromMillis(startedAt)
	experiment.FinishedAt = fromMillis(finishedAt)
	return experiment, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

func joinSources(sources []string) string {
	cleaned := make([]string, 0, len(sources))
	for _, source := range sources {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		cleaned = append(cleaned, source)
	}
	return strings.Join(cleaned, ",")
}

func splitSources(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	sources := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sources = append(sources, part)
	}
	return sources
}
