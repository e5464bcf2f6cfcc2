package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendly-api/internal/models"
)

type mockScoringRepo struct {
	conditions map[models.ConditionType]*models.ScoringCondition
	history    []models.ScoringHistory
}

func (m *mockScoringRepo) ListConditions(ctx context.Context) ([]models.ScoringCondition, error) {
	result := make([]models.ScoringCondition, 0, len(m.conditions))
	for _, c := range m.conditions {
		result = append(result, *c)
	}
	return result, nil
}

func (m *mockScoringRepo) FindConditionByID(ctx context.Context, id string) (*models.ScoringCondition, error) {
	for _, c := range m.conditions {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockScoringRepo) FindConditionByType(ctx context.Context, conditionType models.ConditionType) (*models.ScoringCondition, error) {
	if c, ok := m.conditions[conditionType]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockScoringRepo) CreateCondition(ctx context.Context, condition *models.ScoringCondition) error {
	if m.conditions == nil {
		m.conditions = map[models.ConditionType]*models.ScoringCondition{}
	}
	condition.ID = "c-" + string(condition.Type)
	m.conditions[condition.Type] = condition
	return nil
}

func (m *mockScoringRepo) UpdateCondition(ctx context.Context, condition *models.ScoringCondition) error {
	m.conditions[condition.Type] = condition
	return nil
}

func (m *mockScoringRepo) DeleteCondition(ctx context.Context, id string) error {
	for key, c := range m.conditions {
		if c.ID == id {
			delete(m.conditions, key)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockScoringRepo) CreateHistory(ctx context.Context, entry *models.ScoringHistory) error {
	m.history = append(m.history, *entry)
	return nil
}

func (m *mockScoringRepo) LastHistory(ctx context.Context, studentID int64, conditionType models.ConditionType, week *int) (*models.ScoringHistory, error) {
	for i := len(m.history) - 1; i >= 0; i-- {
		entry := m.history[i]
		if entry.StudentID != studentID || entry.Type != conditionType {
			continue
		}
		if week != nil && (entry.Week == nil || *entry.Week != *week) {
			continue
		}
		return &entry, nil
	}
	return nil, sql.ErrNoRows
}

type mockScoringStudentRepo struct {
	scores map[int64]int
	weeks  map[int64][]models.WeekRecord
}

func (m *mockScoringStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if _, ok := m.scores[id]; !ok {
		return nil, sql.ErrNoRows
	}
	score := m.scores[id]
	return &models.Student{ID: id, Name: "student", Score: &score, Active: true}, nil
}

func (m *mockScoringStudentRepo) ApplyScoreDelta(ctx context.Context, id int64, delta int) (int, error) {
	if _, ok := m.scores[id]; !ok {
		return 0, sql.ErrNoRows
	}
	next := m.scores[id] + delta
	if next < 0 {
		next = 0
	}
	m.scores[id] = next
	return next, nil
}

func (m *mockScoringStudentRepo) ListWeeks(ctx context.Context, studentID int64) ([]models.WeekRecord, error) {
	return m.weeks[studentID], nil
}

type mockInvalidator struct {
	calls int
}

func (m *mockInvalidator) Invalidate(ctx context.Context) {
	m.calls++
}

func float64Ptr(f float64) *float64                        { return &f }
func hwPtr(s models.HomeworkStatus) *models.HomeworkStatus { return &s }

func attendanceCondition() *models.ScoringCondition {
	return &models.ScoringCondition{
		ID:   "c-attendance",
		Type: models.ConditionAttendance,
		Rules: models.RuleList{
			{Key: models.AttendanceKeyAttend, Points: 10},
			{Key: models.AttendanceKeyAbsent, Points: -5},
		},
	}
}

func quizCondition() *models.ScoringCondition {
	return &models.ScoringCondition{
		ID:   "c-quiz",
		Type: models.ConditionQuiz,
		Rules: models.RuleList{
			{Min: float64Ptr(90), Max: float64Ptr(100), Points: 20},
			{Min: float64Ptr(50), Max: float64Ptr(89.99), Points: 10},
			{Min: float64Ptr(0), Max: float64Ptr(49.99), Points: 0},
		},
	}
}

func TestResolveBasePointsAttendance(t *testing.T) {
	cond := attendanceCondition()

	points, err := resolveBasePoints(cond, CalculateRequest{Status: "attend"})
	require.NoError(t, err)
	assert.Equal(t, 10, points)

	points, err = resolveBasePoints(cond, CalculateRequest{Status: "absent"})
	require.NoError(t, err)
	assert.Equal(t, -5, points)

	_, err = resolveBasePoints(cond, CalculateRequest{Status: "late"})
	require.Error(t, err)
}

func TestResolveBasePointsRangeInclusiveFirstMatch(t *testing.T) {
	cond := quizCondition()

	points, err := resolveBasePoints(cond, CalculateRequest{Percentage: float64Ptr(90)})
	require.NoError(t, err)
	assert.Equal(t, 20, points, "lower bound is inclusive")

	points, err = resolveBasePoints(cond, CalculateRequest{Percentage: float64Ptr(100)})
	require.NoError(t, err)
	assert.Equal(t, 20, points, "upper bound is inclusive")

	points, err = resolveBasePoints(cond, CalculateRequest{Percentage: float64Ptr(89.99)})
	require.NoError(t, err)
	assert.Equal(t, 10, points)

	_, err = resolveBasePoints(cond, CalculateRequest{Percentage: float64Ptr(101)})
	require.Error(t, err)
}

func TestResolveBasePointsOverlappingRangesFirstWins(t *testing.T) {
	cond := &models.ScoringCondition{
		Type: models.ConditionQuiz,
		Rules: models.RuleList{
			{Min: float64Ptr(80), Max: float64Ptr(100), Points: 15},
			{Min: float64Ptr(80), Max: float64Ptr(90), Points: 5},
		},
	}

	points, err := resolveBasePoints(cond, CalculateRequest{Percentage: float64Ptr(85)})
	require.NoError(t, err)
	assert.Equal(t, 15, points)
}

func TestResolveBasePointsHomeworkStatus(t *testing.T) {
	cond := &models.ScoringCondition{
		Type: models.ConditionHomework,
		Rules: models.RuleList{
			{HomeworkDone: hwPtr(models.HomeworkDone), Points: 10},
			{HomeworkDone: hwPtr(models.HomeworkNotDone), Points: -5},
			{HomeworkDone: hwPtr(models.HomeworkNone), Points: 0},
		},
	}

	points, err := resolveBasePoints(cond, CalculateRequest{HomeworkDone: hwPtr(models.HomeworkDone)})
	require.NoError(t, err)
	assert.Equal(t, 10, points)

	_, err = resolveBasePoints(cond, CalculateRequest{HomeworkDone: hwPtr(models.HomeworkNotCompleted)})
	require.Error(t, err)
}

func weekRecord(week int, attended bool, hw models.HomeworkStatus, quiz *string) models.WeekRecord {
	return models.WeekRecord{Week: week, Attended: attended, HomeworkDone: hw, QuizDegree: quiz}
}

func TestResolveBonusPointsHomeworkStreak(t *testing.T) {
	rules := models.BonusRuleList{
		{Condition: models.BonusCondition{LastN: 3, HomeworkDone: hwPtr(models.HomeworkDone)}, Points: 15},
	}
	weeks := []models.WeekRecord{
		weekRecord(1, true, models.HomeworkNotDone, nil),
		weekRecord(2, true, models.HomeworkDone, nil),
		weekRecord(3, true, models.HomeworkDone, nil),
		weekRecord(4, true, models.HomeworkDone, nil),
	}

	assert.Equal(t, 15, resolveBonusPoints(rules, weeks))

	weeks[3].HomeworkDone = models.HomeworkNotDone
	assert.Equal(t, 0, resolveBonusPoints(rules, weeks))
}

func TestResolveBonusPointsTooFewWeeks(t *testing.T) {
	rules := models.BonusRuleList{
		{Condition: models.BonusCondition{LastN: 5, HomeworkDone: hwPtr(models.HomeworkDone)}, Points: 15},
	}
	weeks := []models.WeekRecord{
		weekRecord(1, true, models.HomeworkDone, nil),
		weekRecord(2, true, models.HomeworkDone, nil),
	}

	assert.Equal(t, 0, resolveBonusPoints(rules, weeks))
}

func TestResolveBonusPointsQuizThreshold(t *testing.T) {
	high := "95"
	low := "40"
	rules := models.BonusRuleList{
		{Condition: models.BonusCondition{LastN: 2, Percentage: float64Ptr(90)}, Points: 10},
	}

	weeks := []models.WeekRecord{
		weekRecord(1, true, models.HomeworkDone, &high),
		weekRecord(2, true, models.HomeworkDone, &high),
	}
	assert.Equal(t, 10, resolveBonusPoints(rules, weeks))

	weeks[1].QuizDegree = &low
	assert.Equal(t, 0, resolveBonusPoints(rules, weeks))

	weeks[1].QuizDegree = nil
	assert.Equal(t, 0, resolveBonusPoints(rules, weeks))
}

func TestResolveBonusPointsAttendanceStreak(t *testing.T) {
	rules := models.BonusRuleList{
		{Condition: models.BonusCondition{LastN: 2}, Points: 5},
	}
	weeks := []models.WeekRecord{
		weekRecord(1, false, models.HomeworkDone, nil),
		weekRecord(2, true, models.HomeworkDone, nil),
		weekRecord(3, true, models.HomeworkDone, nil),
	}
	assert.Equal(t, 5, resolveBonusPoints(rules, weeks))

	weeks[2].Attended = false
	assert.Equal(t, 0, resolveBonusPoints(rules, weeks))
}

func TestCalculateAppliesDeltaAndRecordsHistory(t *testing.T) {
	repo := &mockScoringRepo{conditions: map[models.ConditionType]*models.ScoringCondition{
		models.ConditionAttendance: attendanceCondition(),
	}}
	students := &mockScoringStudentRepo{scores: map[int64]int{7: 100}}
	invalidator := &mockInvalidator{}
	svc := NewScoringService(repo, students, invalidator, nil, nil)

	week := 3
	result, err := svc.Calculate(context.Background(), CalculateRequest{
		StudentID: 7,
		Type:      models.ConditionAttendance,
		Week:      &week,
		Status:    "attend",
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Points)
	assert.Equal(t, 0, result.BonusPoints)
	assert.Equal(t, 110, result.NewScore)
	assert.Equal(t, 110, students.scores[7])
	assert.Equal(t, 1, invalidator.calls)

	require.Len(t, repo.history, 1)
	assert.Equal(t, int64(7), repo.history[0].StudentID)
	assert.Equal(t, 3, *repo.history[0].Week)
}

func TestCalculateFloorsScoreAtZero(t *testing.T) {
	repo := &mockScoringRepo{conditions: map[models.ConditionType]*models.ScoringCondition{
		models.ConditionAttendance: attendanceCondition(),
	}}
	students := &mockScoringStudentRepo{scores: map[int64]int{7: 2}}
	svc := NewScoringService(repo, students, nil, nil, nil)

	result, err := svc.Calculate(context.Background(), CalculateRequest{
		StudentID: 7,
		Type:      models.ConditionAttendance,
		Status:    "absent",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewScore)
}

func TestCalculateWithBonus(t *testing.T) {
	cond := attendanceCondition()
	cond.BonusRules = models.BonusRuleList{
		{Condition: models.BonusCondition{LastN: 2, HomeworkDone: hwPtr(models.HomeworkDone)}, Points: 7},
	}
	repo := &mockScoringRepo{conditions: map[models.ConditionType]*models.ScoringCondition{
		models.ConditionAttendance: cond,
	}}
	students := &mockScoringStudentRepo{
		scores: map[int64]int{7: 0},
		weeks: map[int64][]models.WeekRecord{7: {
			weekRecord(1, true, models.HomeworkDone, nil),
			weekRecord(2, true, models.HomeworkDone, nil),
		}},
	}
	svc := NewScoringService(repo, students, nil, nil, nil)

	result, err := svc.Calculate(context.Background(), CalculateRequest{
		StudentID: 7,
		Type:      models.ConditionAttendance,
		Status:    "attend",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Points)
	assert.Equal(t, 7, result.BonusPoints)
	assert.Equal(t, 17, result.NewScore)
}

func TestCalculateUnknownStudent(t *testing.T) {
	repo := &mockScoringRepo{conditions: map[models.ConditionType]*models.ScoringCondition{
		models.ConditionAttendance: attendanceCondition(),
	}}
	svc := NewScoringService(repo, &mockScoringStudentRepo{scores: map[int64]int{}}, nil, nil, nil)

	_, err := svc.Calculate(context.Background(), CalculateRequest{
		StudentID: 404,
		Type:      models.ConditionAttendance,
		Status:    "attend",
	})
	require.Error(t, err)
}

func TestLastHistoryProbe(t *testing.T) {
	week := 2
	repo := &mockScoringRepo{history: []models.ScoringHistory{
		{StudentID: 7, Type: models.ConditionQuiz, Week: &week, Points: 10},
	}}
	svc := NewScoringService(repo, &mockScoringStudentRepo{}, nil, nil, nil)

	entry, err := svc.LastHistory(context.Background(), LastHistoryRequest{
		StudentID: 7,
		Type:      models.ConditionQuiz,
		Week:      &week,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, entry.Points)

	other := 3
	_, err = svc.LastHistory(context.Background(), LastHistoryRequest{
		StudentID: 7,
		Type:      models.ConditionQuiz,
		Week:      &other,
	})
	require.Error(t, err)
}

func TestValidateConditionRejectsEmptyRules(t *testing.T) {
	svc := NewScoringService(&mockScoringRepo{}, &mockScoringStudentRepo{}, nil, nil, nil)

	_, err := svc.CreateCondition(context.Background(), ConditionRequest{
		Type:  models.ConditionAttendance,
		Rules: models.RuleList{},
	})
	require.Error(t, err)
}

func TestValidateConditionRejectsInvertedRange(t *testing.T) {
	svc := NewScoringService(&mockScoringRepo{}, &mockScoringStudentRepo{}, nil, nil, nil)

	_, err := svc.CreateCondition(context.Background(), ConditionRequest{
		Type:  models.ConditionQuiz,
		Rules: models.RuleList{{Min: float64Ptr(90), Max: float64Ptr(10), Points: 5}},
	})
	require.Error(t, err)
}
