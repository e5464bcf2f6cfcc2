package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendly-api/internal/models"
)

// ExportRepository tracks asynchronous export jobs.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository creates a new export repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

// UpdateExportJobParams carries the mutable job fields; nil means unchanged.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	Progress     *int
	FilePath     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Create inserts a queued export job.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportQueued
	}
	job.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO export_jobs (id, format, status, progress, file_path, error_message, created_by, created_at, finished_at)
        VALUES (:id, :format, :status, :progress, :file_path, :error_message, :created_by, :created_at, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID fetches a single export job.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	const query = `SELECT id, format, status, progress, file_path, error_message, created_by, created_at, finished_at
        FROM export_jobs WHERE id = $1`
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// Update applies the non-nil fields to the job.
func (r *ExportRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	sets := make([]string, 0, 5)
	args := []interface{}{id}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.FilePath != nil {
		add("file_path", *params.FilePath)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE export_jobs SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = $1"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
