package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendly-api/internal/models"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	ApplyScoreDelta(ctx context.Context, id int64, delta int) (int, error)
	UpsertWeek(ctx context.Context, record *models.WeekRecord) error
	ListWeeks(ctx context.Context, studentID int64) ([]models.WeekRecord, error)
}

// CreateStudentRequest is the staff payload for registering a student.
type CreateStudentRequest struct {
	Name       string  `json:"name" validate:"required"`
	Grade      *string `json:"grade,omitempty"`
	MainCenter *string `json:"main_center,omitempty"`
	Score      *int    `json:"score,omitempty"`
}

// UpdateStudentRequest carries a partial student edit; nil fields are left
// untouched.
type UpdateStudentRequest struct {
	Name       *string `json:"name,omitempty"`
	Grade      *string `json:"grade,omitempty"`
	MainCenter *string `json:"main_center,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

// AdjustScoreRequest applies a manual point delta to one student.
type AdjustScoreRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// UpsertWeekRequest records one week's engagement for a student. Repeated
// submissions for the same week replace the existing record.
type UpsertWeekRequest struct {
	StudentID         int64                 `json:"student_id" validate:"required"`
	Week              int                   `json:"week" validate:"required,min=1"`
	Attended          bool                  `json:"attended"`
	HomeworkDone      models.HomeworkStatus `json:"hw_done"`
	ViewHomeworkVideo bool                  `json:"view_homework_video"`
	QuizDegree        *string               `json:"quiz_degree,omitempty"`
	Comment           *string               `json:"comment,omitempty"`
	MessageState      bool                  `json:"message_state"`
}

// StudentService owns student records and their weekly engagement rows.
type StudentService struct {
	repo      studentRepository
	rankings  rankingInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService instance.
func NewStudentService(repo studentRepository, rankings rankingInvalidator, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, rankings: rankings, validator: validate, logger: logger}
}

// List returns a page of students.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return students, pagination, nil
}

// Get fetches one student together with its weekly records.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, []models.WeekRecord, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	weeks, err := s.repo.ListWeeks(ctx, id)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student weeks")
	}
	return student, weeks, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	student := &models.Student{
		Name:       strings.TrimSpace(req.Name),
		Grade:      req.Grade,
		MainCenter: req.MainCenter,
		Score:      req.Score,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if student.Score != nil {
		s.invalidateRankings(ctx)
	}
	return student, nil
}

// Update applies a partial edit to a student. Changing grade or center moves
// the student between ranking partitions, so caches are dropped.
func (s *StudentService) Update(ctx context.Context, id int64, req UpdateStudentRequest) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be empty")
		}
		student.Name = trimmed
	}
	if req.Grade != nil {
		student.Grade = req.Grade
	}
	if req.MainCenter != nil {
		student.MainCenter = req.MainCenter
	}
	if req.Active != nil {
		student.Active = *req.Active
	}

	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.invalidateRankings(ctx)
	return student, nil
}

// AdjustScore applies a manual delta to a student's score. The stored score
// never drops below zero.
func (s *StudentService) AdjustScore(ctx context.Context, id int64, req AdjustScoreRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid score payload")
	}

	newScore, err := s.repo.ApplyScoreDelta(ctx, id, req.Delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to adjust score")
	}

	s.invalidateRankings(ctx)
	return newScore, nil
}

// UpsertWeek writes one weekly engagement record, replacing any existing row
// for the same (student, week) pair.
func (s *StudentService) UpsertWeek(ctx context.Context, req UpsertWeekRequest) (*models.WeekRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid week payload")
	}
	status := req.HomeworkDone
	if status == "" {
		status = models.HomeworkNotDone
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown hw_done value")
	}

	if _, err := s.repo.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	record := &models.WeekRecord{
		StudentID:         req.StudentID,
		Week:              req.Week,
		Attended:          req.Attended,
		HomeworkDone:      status,
		ViewHomeworkVideo: req.ViewHomeworkVideo,
		QuizDegree:        req.QuizDegree,
		Comment:           req.Comment,
		MessageState:      req.MessageState,
	}
	if err := s.repo.UpsertWeek(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save week record")
	}
	return record, nil
}

func (s *StudentService) invalidateRankings(ctx context.Context) {
	if s.rankings != nil {
		s.rankings.Invalidate(ctx)
	}
}
