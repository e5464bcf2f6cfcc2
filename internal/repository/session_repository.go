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

// SessionRepository handles homework video session persistence.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, week, grade, payment_state, name, description, created_at, updated_at`

// List returns sessions matching the filter plus the unpaginated total.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.HomeworkVideoSession, int, error) {
	where := "WHERE 1=1"
	var args []interface{}
	if filter.Grade != "" {
		args = append(args, filter.Grade)
		where += fmt.Sprintf(" AND grade = $%d", len(args))
	}
	if filter.Week != nil {
		args = append(args, *filter.Week)
		where += fmt.Sprintf(" AND week = $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT count(*) FROM homework_video_sessions "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	query := "SELECT " + sessionColumns + " FROM homework_video_sessions " + where + " ORDER BY created_at DESC"
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PageSize)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	var sessions []models.HomeworkVideoSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	for i := range sessions {
		videos, err := r.listVideos(ctx, sessions[i].ID)
		if err != nil {
			return nil, 0, err
		}
		sessions[i].Videos = videos
	}
	return sessions, total, nil
}

// FindByID fetches a session with its videos.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.HomeworkVideoSession, error) {
	query := "SELECT " + sessionColumns + " FROM homework_video_sessions WHERE id = $1"
	var session models.HomeworkVideoSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	videos, err := r.listVideos(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Videos = videos
	return &session, nil
}

// ExistsByGradeWeek reports whether another session already occupies this
// grade+week slot.
func (r *SessionRepository) ExistsByGradeWeek(ctx context.Context, grade string, week int, excludeID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM homework_video_sessions WHERE grade = $1 AND week = $2 AND id <> $3)`
	if err := r.db.GetContext(ctx, &exists, query, grade, week, excludeID); err != nil {
		return false, fmt.Errorf("check session slot: %w", err)
	}
	return exists, nil
}

// Create inserts a session and its videos in one transaction.
func (r *SessionRepository) Create(ctx context.Context, session *models.HomeworkVideoSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	const query = `INSERT INTO homework_video_sessions (id, week, grade, payment_state, name, description, created_at, updated_at)
        VALUES (:id, :week, :grade, :payment_state, :name, :description, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert session: %w", err)
	}
	if err := insertVideos(ctx, tx, session); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// Update replaces session fields and its video list.
func (r *SessionRepository) Update(ctx context.Context, session *models.HomeworkVideoSession) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE homework_video_sessions SET week = :week, grade = :grade, payment_state = :payment_state,
        name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
	result, err := tx.NamedExecContext(ctx, query, session)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM session_videos WHERE session_id = $1", session.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear session videos: %w", err)
	}
	if err := insertVideos(ctx, tx, session); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session update: %w", err)
	}
	return nil
}

// Delete removes a session; videos cascade.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM homework_video_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *SessionRepository) listVideos(ctx context.Context, sessionID string) ([]models.SessionVideo, error) {
	const query = `SELECT id, session_id, position, video_id, video_type, COALESCE(video_name, '') AS video_name
        FROM session_videos WHERE session_id = $1 ORDER BY position`
	var videos []models.SessionVideo
	if err := r.db.SelectContext(ctx, &videos, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session videos: %w", err)
	}
	return videos, nil
}

func insertVideos(ctx context.Context, tx *sqlx.Tx, session *models.HomeworkVideoSession) error {
	for i := range session.Videos {
		video := &session.Videos[i]
		if video.ID == "" {
			video.ID = uuid.NewString()
		}
		video.SessionID = session.ID
		video.Position = i + 1
		if video.VideoType == "" {
			video.VideoType = "youtube"
		}
		const query = `INSERT INTO session_videos (id, session_id, position, video_id, video_type, video_name)
            VALUES (:id, :session_id, :position, :video_id, :video_type, :video_name)`
		if _, err := tx.NamedExecContext(ctx, query, video); err != nil {
			return fmt.Errorf("insert session video: %w", err)
		}
	}
	return nil
}
