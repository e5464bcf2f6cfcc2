package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendly-api/internal/models"
)

// StudentRepository handles student and week-record persistence.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

var studentSortColumns = map[string]string{
	"id":          "id",
	"name":        "name",
	"grade":       "grade",
	"main_center": "main_center",
	"score":       "score",
	"created_at":  "created_at",
}

// List returns students matching the filter plus the unpaginated total.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := "WHERE active = TRUE"
	var args []interface{}
	if filter.Grade != "" {
		args = append(args, filter.Grade)
		where += fmt.Sprintf(" AND grade = $%d", len(args))
	}
	if filter.MainCenter != "" {
		args = append(args, filter.MainCenter)
		where += fmt.Sprintf(" AND main_center = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT count(*) FROM students "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	sortBy, ok := studentSortColumns[filter.SortBy]
	if !ok {
		sortBy = "id"
	}
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
	}

	query := fmt.Sprintf("SELECT id, name, grade, main_center, score, active, created_at, updated_at FROM students %s ORDER BY %s %s NULLS LAST",
		where, sortBy, order)
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PageSize)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every active student. The ranking engine recomputes ranks
// from this full set; ordering by id keeps the computation deterministic.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT id, name, grade, main_center, score, active, created_at, updated_at
        FROM students WHERE active = TRUE ORDER BY id`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// FindByID fetches a single student.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	const query = `SELECT id, name, grade, main_center, score, active, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, name, grade, main_center, score, active, created_at, updated_at)
        VALUES (:id, :name, :grade, :main_center, :score, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update stores student fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, grade = :grade, main_center = :main_center,
        score = :score, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// ApplyScoreDelta adds delta to the student's score, flooring at zero. A null
// score counts as zero. Returns the new score.
func (r *StudentRepository) ApplyScoreDelta(ctx context.Context, id int64, delta int) (int, error) {
	const query = `UPDATE students
        SET score = GREATEST(COALESCE(score, 0) + $2, 0), updated_at = now()
        WHERE id = $1
        RETURNING score`
	var score int
	if err := r.db.GetContext(ctx, &score, query, id, delta); err != nil {
		return 0, err
	}
	return score, nil
}

// UpsertWeek inserts or updates the week record keyed on (student_id, week).
func (r *StudentRepository) UpsertWeek(ctx context.Context, record *models.WeekRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO student_weeks (id, student_id, week, attended, hw_done, view_homework_video, quiz_degree, comment, message_state, created_at, updated_at)
        VALUES (:id, :student_id, :week, :attended, :hw_done, :view_homework_video, :quiz_degree, :comment, :message_state, :created_at, :updated_at)
        ON CONFLICT (student_id, week)
        DO UPDATE SET attended = EXCLUDED.attended, hw_done = EXCLUDED.hw_done,
            view_homework_video = EXCLUDED.view_homework_video, quiz_degree = EXCLUDED.quiz_degree,
            comment = EXCLUDED.comment, message_state = EXCLUDED.message_state, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert week record: %w", err)
	}
	return nil
}

// MarkVideoViewed flags the week's video as watched, creating the week record
// with defaults when it does not exist yet. Repeated calls are idempotent.
func (r *StudentRepository) MarkVideoViewed(ctx context.Context, studentID int64, week int) error {
	const query = `INSERT INTO student_weeks (id, student_id, week, attended, hw_done, view_homework_video, quiz_degree, comment, message_state, created_at, updated_at)
        VALUES ($1, $2, $3, FALSE, $4, TRUE, NULL, NULL, FALSE, now(), now())
        ON CONFLICT (student_id, week)
        DO UPDATE SET view_homework_video = TRUE, updated_at = now()`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), studentID, week, models.HomeworkNotDone); err != nil {
		return fmt.Errorf("mark video viewed: %w", err)
	}
	return nil
}

// ListWeeks returns a student's week records ordered by week.
func (r *StudentRepository) ListWeeks(ctx context.Context, studentID int64) ([]models.WeekRecord, error) {
	const query = `SELECT id, student_id, week, attended, hw_done, view_homework_video, quiz_degree, comment, message_state, created_at, updated_at
        FROM student_weeks WHERE student_id = $1 ORDER BY week`
	var records []models.WeekRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list week records: %w", err)
	}
	return records, nil
}
