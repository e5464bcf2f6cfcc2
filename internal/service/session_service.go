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

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.HomeworkVideoSession, int, error)
	FindByID(ctx context.Context, id string) (*models.HomeworkVideoSession, error)
	ExistsByGradeWeek(ctx context.Context, grade string, week int, excludeID string) (bool, error)
	Create(ctx context.Context, session *models.HomeworkVideoSession) error
	Update(ctx context.Context, session *models.HomeworkVideoSession) error
	Delete(ctx context.Context, id string) error
}

// SessionVideoRequest describes one video inside a session payload.
type SessionVideoRequest struct {
	VideoID   string `json:"video_id" validate:"required"`
	VideoType string `json:"video_type" validate:"required"`
	VideoName string `json:"video_name,omitempty"`
}

// SessionRequest is the create/update payload for a homework video session.
type SessionRequest struct {
	Week         *int                       `json:"week,omitempty"`
	Grade        string                     `json:"grade" validate:"required"`
	PaymentState models.SessionPaymentState `json:"payment_state" validate:"required"`
	Name         string                     `json:"name" validate:"required"`
	Description  *string                    `json:"description,omitempty"`
	Videos       []SessionVideoRequest      `json:"videos" validate:"required,min=1,dive"`
}

// SessionService manages homework video sessions and enforces the one
// session per grade and week rule.
type SessionService struct {
	repo      sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(repo sessionRepository, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionService{repo: repo, validator: validate, logger: logger}
}

// List returns a page of sessions with their videos.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.HomeworkVideoSession, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return sessions, pagination, nil
}

// Get fetches one session with its videos.
func (s *SessionService) Get(ctx context.Context, id string) (*models.HomeworkVideoSession, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	return session, nil
}

// Create stores a new session after checking the grade+week slot is free.
func (s *SessionService) Create(ctx context.Context, req SessionRequest) (*models.HomeworkVideoSession, error) {
	if err := s.validateSession(req); err != nil {
		return nil, err
	}
	if err := s.ensureSlotFree(ctx, req, ""); err != nil {
		return nil, err
	}

	session := s.buildSession(req)
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// Update replaces a session's fields and video list.
func (s *SessionService) Update(ctx context.Context, id string, req SessionRequest) (*models.HomeworkVideoSession, error) {
	if err := s.validateSession(req); err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if err := s.ensureSlotFree(ctx, req, existing.ID); err != nil {
		return nil, err
	}

	session := s.buildSession(req)
	session.ID = existing.ID
	if err := s.repo.Update(ctx, session); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return session, nil
}

// Delete removes a session and its videos.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

func (s *SessionService) validateSession(req SessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !req.PaymentState.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "payment_state must be paid, free or free_if_attended")
	}
	if req.Week != nil && *req.Week < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "week must be at least 1")
	}
	return nil
}

func (s *SessionService) ensureSlotFree(ctx context.Context, req SessionRequest, excludeID string) error {
	if req.Week == nil {
		return nil
	}
	exists, err := s.repo.ExistsByGradeWeek(ctx, req.Grade, *req.Week, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session slot")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "a session for this grade and week already exists")
	}
	return nil
}

func (s *SessionService) buildSession(req SessionRequest) *models.HomeworkVideoSession {
	videos := make([]models.SessionVideo, 0, len(req.Videos))
	for i, video := range req.Videos {
		videos = append(videos, models.SessionVideo{
			Position:  i,
			VideoID:   video.VideoID,
			VideoType: video.VideoType,
			VideoName: video.VideoName,
		})
	}
	return &models.HomeworkVideoSession{
		Week:         req.Week,
		Grade:        strings.TrimSpace(req.Grade),
		PaymentState: req.PaymentState,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Videos:       videos,
	}
}
