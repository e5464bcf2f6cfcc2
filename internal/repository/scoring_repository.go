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

// ScoringRepository handles scoring condition and history persistence.
type ScoringRepository struct {
	db *sqlx.DB
}

// NewScoringRepository creates a new scoring repository.
func NewScoringRepository(db *sqlx.DB) *ScoringRepository {
	return &ScoringRepository{db: db}
}

const conditionColumns = `id, type, with_degree, rules, bonus_rules, created_at, updated_at`

// ListConditions returns all scoring conditions.
func (r *ScoringRepository) ListConditions(ctx context.Context) ([]models.ScoringCondition, error) {
	query := "SELECT " + conditionColumns + " FROM scoring_conditions ORDER BY type, created_at"
	var conditions []models.ScoringCondition
	if err := r.db.SelectContext(ctx, &conditions, query); err != nil {
		return nil, fmt.Errorf("list scoring conditions: %w", err)
	}
	return conditions, nil
}

// FindConditionByID fetches a single condition.
func (r *ScoringRepository) FindConditionByID(ctx context.Context, id string) (*models.ScoringCondition, error) {
	query := "SELECT " + conditionColumns + " FROM scoring_conditions WHERE id = $1"
	var condition models.ScoringCondition
	if err := r.db.GetContext(ctx, &condition, query, id); err != nil {
		return nil, err
	}
	return &condition, nil
}

// FindConditionByType returns the most recently updated condition of a type.
func (r *ScoringRepository) FindConditionByType(ctx context.Context, conditionType models.ConditionType) (*models.ScoringCondition, error) {
	query := "SELECT " + conditionColumns + " FROM scoring_conditions WHERE type = $1 ORDER BY updated_at DESC LIMIT 1"
	var condition models.ScoringCondition
	if err := r.db.GetContext(ctx, &condition, query, conditionType); err != nil {
		return nil, err
	}
	return &condition, nil
}

// CreateCondition inserts a new condition.
func (r *ScoringRepository) CreateCondition(ctx context.Context, condition *models.ScoringCondition) error {
	if condition.ID == "" {
		condition.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	condition.CreatedAt = now
	condition.UpdatedAt = now
	const query = `INSERT INTO scoring_conditions (id, type, with_degree, rules, bonus_rules, created_at, updated_at)
        VALUES (:id, :type, :with_degree, :rules, :bonus_rules, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, condition); err != nil {
		return fmt.Errorf("create scoring condition: %w", err)
	}
	return nil
}

// UpdateCondition stores condition fields.
func (r *ScoringRepository) UpdateCondition(ctx context.Context, condition *models.ScoringCondition) error {
	condition.UpdatedAt = time.Now().UTC()
	const query = `UPDATE scoring_conditions SET type = :type, with_degree = :with_degree,
        rules = :rules, bonus_rules = :bonus_rules, updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, condition)
	if err != nil {
		return fmt.Errorf("update scoring condition: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCondition removes a condition by id.
func (r *ScoringRepository) DeleteCondition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scoring_conditions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete scoring condition: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CreateHistory records an applied point delta.
func (r *ScoringRepository) CreateHistory(ctx context.Context, entry *models.ScoringHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO scoring_history (id, student_id, type, week, points, bonus_points, created_at)
        VALUES (:id, :student_id, :type, :week, :points, :bonus_points, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create scoring history: %w", err)
	}
	return nil
}

// LastHistory returns the most recent history entry for a student and type,
// optionally narrowed to one week.
func (r *ScoringRepository) LastHistory(ctx context.Context, studentID int64, conditionType models.ConditionType, week *int) (*models.ScoringHistory, error) {
	query := `SELECT id, student_id, type, week, points, bonus_points, created_at
        FROM scoring_history WHERE student_id = $1 AND type = $2`
	args := []interface{}{studentID, conditionType}
	if week != nil {
		args = append(args, *week)
		query += fmt.Sprintf(" AND week = $%d", len(args))
	}
	query += " ORDER BY created_at DESC LIMIT 1"

	var entry models.ScoringHistory
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		return nil, err
	}
	return &entry, nil
}
