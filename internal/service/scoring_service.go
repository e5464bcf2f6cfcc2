package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendly-api/internal/models"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

type scoringRepository interface {
	ListConditions(ctx context.Context) ([]models.ScoringCondition, error)
	FindConditionByID(ctx context.Context, id string) (*models.ScoringCondition, error)
	FindConditionByType(ctx context.Context, conditionType models.ConditionType) (*models.ScoringCondition, error)
	CreateCondition(ctx context.Context, condition *models.ScoringCondition) error
	UpdateCondition(ctx context.Context, condition *models.ScoringCondition) error
	DeleteCondition(ctx context.Context, id string) error
	CreateHistory(ctx context.Context, entry *models.ScoringHistory) error
	LastHistory(ctx context.Context, studentID int64, conditionType models.ConditionType, week *int) (*models.ScoringHistory, error)
}

type scoringStudentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ApplyScoreDelta(ctx context.Context, id int64, delta int) (int, error)
	ListWeeks(ctx context.Context, studentID int64) ([]models.WeekRecord, error)
}

type rankingInvalidator interface {
	Invalidate(ctx context.Context)
}

// ConditionRequest is the create/update payload for a scoring condition.
type ConditionRequest struct {
	Type       models.ConditionType `json:"type" validate:"required"`
	WithDegree bool                 `json:"with_degree"`
	Rules      models.RuleList      `json:"rules" validate:"required,min=1"`
	BonusRules models.BonusRuleList `json:"bonus_rules"`
}

// CalculateRequest applies the configured condition of a type to one
// student's latest outcome.
type CalculateRequest struct {
	StudentID    int64                  `json:"student_id" validate:"required"`
	Type         models.ConditionType   `json:"type" validate:"required"`
	Week         *int                   `json:"week,omitempty"`
	Status       string                 `json:"status,omitempty"`
	Percentage   *float64               `json:"percentage,omitempty"`
	HomeworkDone *models.HomeworkStatus `json:"hw_done,omitempty"`
}

// CalculateResult reports the applied deltas and the resulting total.
type CalculateResult struct {
	StudentID   int64 `json:"student_id"`
	Points      int   `json:"points"`
	BonusPoints int   `json:"bonus_points"`
	NewScore    int   `json:"new_score"`
}

// LastHistoryRequest narrows the idempotency probe.
type LastHistoryRequest struct {
	StudentID int64                `json:"student_id" validate:"required"`
	Type      models.ConditionType `json:"type" validate:"required"`
	Week      *int                 `json:"week,omitempty"`
}

// ScoringService manages scoring conditions and applies them to student
// outcomes. Applied deltas go through the score floor and are recorded in
// history so callers can probe for duplicates before re-applying.
type ScoringService struct {
	repo      scoringRepository
	students  scoringStudentRepository
	rankings  rankingInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScoringService constructs a ScoringService instance.
func NewScoringService(repo scoringRepository, students scoringStudentRepository, rankings rankingInvalidator, validate *validator.Validate, logger *zap.Logger) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ScoringService{repo: repo, students: students, rankings: rankings, validator: validate, logger: logger}
}

// ListConditions returns every configured condition.
func (s *ScoringService) ListConditions(ctx context.Context) ([]models.ScoringCondition, error) {
	conditions, err := s.repo.ListConditions(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scoring conditions")
	}
	return conditions, nil
}

// GetCondition fetches one condition.
func (s *ScoringService) GetCondition(ctx context.Context, id string) (*models.ScoringCondition, error) {
	condition, err := s.repo.FindConditionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring condition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scoring condition")
	}
	return condition, nil
}

// CreateCondition validates and stores a new condition.
func (s *ScoringService) CreateCondition(ctx context.Context, req ConditionRequest) (*models.ScoringCondition, error) {
	if err := s.validateCondition(req); err != nil {
		return nil, err
	}
	condition := &models.ScoringCondition{
		Type:       req.Type,
		WithDegree: req.WithDegree,
		Rules:      req.Rules,
		BonusRules: req.BonusRules,
	}
	if err := s.repo.CreateCondition(ctx, condition); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scoring condition")
	}
	return condition, nil
}

// UpdateCondition validates and replaces a condition's rule tables.
func (s *ScoringService) UpdateCondition(ctx context.Context, id string, req ConditionRequest) (*models.ScoringCondition, error) {
	if err := s.validateCondition(req); err != nil {
		return nil, err
	}
	condition, err := s.repo.FindConditionByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring condition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scoring condition")
	}
	condition.Type = req.Type
	condition.WithDegree = req.WithDegree
	condition.Rules = req.Rules
	condition.BonusRules = req.BonusRules
	if err := s.repo.UpdateCondition(ctx, condition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "scoring condition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update scoring condition")
	}
	return condition, nil
}

// DeleteCondition removes a condition.
func (s *ScoringService) DeleteCondition(ctx context.Context, id string) error {
	if err := s.repo.DeleteCondition(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "scoring condition not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete scoring condition")
	}
	return nil
}

// Calculate resolves base and bonus points for one outcome, applies the
// floored delta to the student's score and records a history entry. Ranking
// caches are invalidated on success.
func (s *ScoringService) Calculate(ctx context.Context, req CalculateRequest) (*CalculateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calculate payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown condition type")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	condition, err := s.repo.FindConditionByType(ctx, req.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no scoring condition configured for this type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scoring condition")
	}

	points, err := resolveBasePoints(condition, req)
	if err != nil {
		return nil, err
	}

	bonus := 0
	if len(condition.BonusRules) > 0 {
		weeks, err := s.students.ListWeeks(ctx, req.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student weeks")
		}
		bonus = resolveBonusPoints(condition.BonusRules, weeks)
	}

	newScore, err := s.students.ApplyScoreDelta(ctx, req.StudentID, points+bonus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply score delta")
	}

	entry := &models.ScoringHistory{
		StudentID:   req.StudentID,
		Type:        req.Type,
		Week:        req.Week,
		Points:      points,
		BonusPoints: bonus,
	}
	if err := s.repo.CreateHistory(ctx, entry); err != nil {
		s.logger.Warn("failed to record scoring history", zap.Int64("student_id", req.StudentID), zap.Error(err))
	}

	if s.rankings != nil {
		s.rankings.Invalidate(ctx)
	}

	return &CalculateResult{
		StudentID:   req.StudentID,
		Points:      points,
		BonusPoints: bonus,
		NewScore:    newScore,
	}, nil
}

// LastHistory returns the most recent applied delta matching the probe.
func (s *ScoringService) LastHistory(ctx context.Context, req LastHistoryRequest) (*models.ScoringHistory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid history probe")
	}
	entry, err := s.repo.LastHistory(ctx, req.StudentID, req.Type, req.Week)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no scoring history found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scoring history")
	}
	return entry, nil
}

func (s *ScoringService) validateCondition(req ConditionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid condition payload")
	}
	if !req.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "type must be attendance, homework or quiz")
	}
	if len(req.Rules) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "rules cannot be empty")
	}

	ranged := req.Type == models.ConditionQuiz || (req.Type == models.ConditionHomework && req.WithDegree)
	for _, rule := range req.Rules {
		switch {
		case req.Type == models.ConditionAttendance:
			if rule.Key != models.AttendanceKeyAttend && rule.Key != models.AttendanceKeyAbsent {
				return appErrors.Clone(appErrors.ErrValidation, "attendance rules need key attend or absent")
			}
		case ranged:
			if rule.Min == nil || rule.Max == nil {
				return appErrors.Clone(appErrors.ErrValidation, "range rules need min and max")
			}
			if *rule.Min > *rule.Max {
				return appErrors.Clone(appErrors.ErrValidation, "rule min cannot exceed max")
			}
		default:
			if rule.HomeworkDone == nil || !rule.HomeworkDone.Valid() {
				return appErrors.Clone(appErrors.ErrValidation, "homework rules need a valid hw_done value")
			}
		}
	}

	for _, bonus := range req.BonusRules {
		if bonus.Condition.LastN < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "bonus last_n must be at least 1")
		}
		if bonus.Condition.HomeworkDone != nil && !bonus.Condition.HomeworkDone.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, "bonus hw_done value is unknown")
		}
	}
	return nil
}

// resolveBasePoints finds the first rule matching the submitted outcome.
// Range rules use inclusive bounds and the first match wins.
func resolveBasePoints(condition *models.ScoringCondition, req CalculateRequest) (int, error) {
	switch condition.Type {
	case models.ConditionAttendance:
		if req.Status != models.AttendanceKeyAttend && req.Status != models.AttendanceKeyAbsent {
			return 0, appErrors.Clone(appErrors.ErrValidation, "status must be attend or absent")
		}
		for _, rule := range condition.Rules {
			if rule.Key == req.Status {
				return rule.Points, nil
			}
		}

	case models.ConditionQuiz:
		return matchRange(condition.Rules, req.Percentage)

	case models.ConditionHomework:
		if condition.WithDegree {
			return matchRange(condition.Rules, req.Percentage)
		}
		if req.HomeworkDone == nil || !req.HomeworkDone.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, "hw_done is required for this condition")
		}
		for _, rule := range condition.Rules {
			if rule.HomeworkDone != nil && *rule.HomeworkDone == *req.HomeworkDone {
				return rule.Points, nil
			}
		}
	}
	return 0, appErrors.Clone(appErrors.ErrNotFound, "no scoring rule matches the submitted outcome")
}

func matchRange(rules models.RuleList, percentage *float64) (int, error) {
	if percentage == nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "percentage is required for this condition")
	}
	for _, rule := range rules {
		if rule.Min == nil || rule.Max == nil {
			continue
		}
		if *percentage >= *rule.Min && *percentage <= *rule.Max {
			return rule.Points, nil
		}
	}
	return 0, appErrors.Clone(appErrors.ErrNotFound, "no scoring rule matches the submitted outcome")
}

// resolveBonusPoints sums every bonus rule whose streak condition holds over
// the student's most recent weeks. A rule asking for more weeks than exist
// never fires.
func resolveBonusPoints(rules models.BonusRuleList, weeks []models.WeekRecord) int {
	total := 0
	for _, rule := range rules {
		n := rule.Condition.LastN
		if n < 1 || len(weeks) < n {
			continue
		}
		streak := weeks[len(weeks)-n:]
		if streakSatisfied(rule.Condition, streak) {
			total += rule.Points
		}
	}
	return total
}

func streakSatisfied(cond models.BonusCondition, streak []models.WeekRecord) bool {
	for _, week := range streak {
		switch {
		case cond.HomeworkDone != nil:
			if week.HomeworkDone != *cond.HomeworkDone {
				return false
			}
		case cond.Percentage != nil:
			if week.QuizDegree == nil {
				return false
			}
			degree, err := strconv.ParseFloat(*week.QuizDegree, 64)
			if err != nil || degree < *cond.Percentage {
				return false
			}
		default:
			if !week.Attended {
				return false
			}
		}
	}
	return true
}
