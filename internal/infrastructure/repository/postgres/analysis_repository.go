package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/script-rating/internal/core/domain"
)

// AnalysisRepository keeps the latest snapshot of every run. The full run is
// stored as JSONB; status and verdict columns are kept for querying.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Create(ctx context.Context, run domain.AnalysisRun) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal analysis snapshot: %w", err)
	}
	rating, confidence := verdictColumns(run)

	_, err = r.db.ExecContext(ctx, `
INSERT INTO analyses (
	id, filename, mime_type, storage_path, status, final_rating, confidence, snapshot, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		run.ID, run.Filename, run.MimeType, run.StoragePath, string(run.Status),
		rating, confidence, snapshot, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) Save(ctx context.Context, run domain.AnalysisRun) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal analysis snapshot: %w", err)
	}
	rating, confidence := verdictColumns(run)

	res, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $2, final_rating = $3, confidence = $4, snapshot = $5, updated_at = $6
WHERE id = $1
`, run.ID, string(run.Status), rating, confidence, snapshot, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update analysis rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update analysis", fmt.Errorf("analysis %s", run.ID))
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (domain.AnalysisRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT storage_path, snapshot
FROM analyses
WHERE id = $1
`, id)

	var storagePath string
	var raw []byte
	if err := row.Scan(&storagePath, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AnalysisRun{}, domain.WrapError(domain.ErrNotFound, "get analysis", fmt.Errorf("analysis %s", id))
		}
		return domain.AnalysisRun{}, fmt.Errorf("scan analysis: %w", err)
	}

	var run domain.AnalysisRun
	if err := json.Unmarshal(raw, &run); err != nil {
		return domain.AnalysisRun{}, fmt.Errorf("unmarshal analysis snapshot: %w", err)
	}
	run.StoragePath = storagePath
	return run.Clone(), nil
}

func verdictColumns(run domain.AnalysisRun) (any, any) {
	var rating, confidence any
	if run.FinalRating != nil {
		rating = run.FinalRating.String()
	}
	if run.ConfidenceScore != nil {
		confidence = *run.ConfidenceScore
	}
	return rating, confidence
}
