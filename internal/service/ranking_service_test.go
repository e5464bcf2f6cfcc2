package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendly-api/internal/models"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

type mockRankingStudentRepo struct {
	students []models.Student
}

func (m *mockRankingStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return m.students, len(m.students), nil
}

func (m *mockRankingStudentRepo) ListAll(ctx context.Context) ([]models.Student, error) {
	return m.students, nil
}

func (m *mockRankingStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	for i := range m.students {
		if m.students[i].ID == id {
			return &m.students[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func rankedStudent(id int64, center, grade string, score *int) models.Student {
	return models.Student{
		ID:         id,
		Name:       "student",
		MainCenter: strPtr(center),
		Grade:      strPtr(grade),
		Score:      score,
		Active:     true,
	}
}

func TestComputeRankingTableOrdersByScoreDescending(t *testing.T) {
	students := []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(150)),
		rankedStudent(2, "East", "3rd", intPtr(300)),
		rankedStudent(3, "East", "3rd", intPtr(90)),
	}

	table := computeRankingTable(students)

	require.Len(t, table, 3)
	assert.Equal(t, 1, *table[2].CenterRank)
	assert.Equal(t, 2, *table[1].CenterRank)
	assert.Equal(t, 3, *table[3].CenterRank)
	assert.Equal(t, 3, *table[1].CenterTotal)
	assert.Equal(t, 1, *table[2].GradeRank)
}

func TestComputeRankingTableTieBreaksOnLowerID(t *testing.T) {
	students := []models.Student{
		rankedStudent(7, "East", "3rd", intPtr(150)),
		rankedStudent(2, "East", "3rd", intPtr(300)),
		rankedStudent(5, "East", "3rd", intPtr(150)),
	}

	table := computeRankingTable(students)

	assert.Equal(t, 1, *table[2].CenterRank)
	assert.Equal(t, 2, *table[5].CenterRank)
	assert.Equal(t, 3, *table[7].CenterRank)
}

func TestComputeRankingTableExcludesNullScores(t *testing.T) {
	students := []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(10)),
		rankedStudent(2, "East", "3rd", nil),
	}

	table := computeRankingTable(students)

	require.Len(t, table, 1)
	assert.Equal(t, 1, *table[1].CenterRank)
	assert.Equal(t, 1, *table[1].CenterTotal)
	_, ok := table[2]
	assert.False(t, ok)
}

func TestComputeRankingTablePartitionsIndependently(t *testing.T) {
	students := []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(50)),
		rankedStudent(2, "West", "3rd", intPtr(40)),
		rankedStudent(3, "East", "2nd", intPtr(30)),
	}

	table := computeRankingTable(students)

	// Each center ranks separately even though one grade spans both.
	assert.Equal(t, 1, *table[1].CenterRank)
	assert.Equal(t, 1, *table[2].CenterRank)
	assert.Equal(t, 2, *table[1].CenterTotal)

	assert.Equal(t, 1, *table[1].GradeRank)
	assert.Equal(t, 2, *table[2].GradeRank)
	assert.Equal(t, 2, *table[1].GradeTotal)
	assert.Equal(t, 1, *table[3].GradeRank)
}

func TestComputeRankingTableGroupsMissingCenterAsUnknown(t *testing.T) {
	students := []models.Student{
		{ID: 1, Name: "a", Score: intPtr(20)},
		{ID: 2, Name: "b", MainCenter: strPtr(""), Score: intPtr(10)},
	}

	table := computeRankingTable(students)

	assert.Equal(t, models.UnknownGroup, table[1].MainCenter)
	assert.Equal(t, 1, *table[1].CenterRank)
	assert.Equal(t, 2, *table[2].CenterRank)
	assert.Equal(t, 2, *table[1].CenterTotal)
}

func TestMyRankingReturnsNullRanksForUnscoredStudent(t *testing.T) {
	repo := &mockRankingStudentRepo{students: []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(100)),
		rankedStudent(2, "East", "3rd", nil),
	}}
	svc := NewRankingService(repo, nil, nil, 0, nil)

	ranking, err := svc.MyRanking(context.Background(), 2)
	require.NoError(t, err)

	assert.Nil(t, ranking.CenterRank)
	assert.Nil(t, ranking.GradeRank)
	assert.Equal(t, "East", ranking.MainCenter)
	assert.Equal(t, "3rd", ranking.Grade)
}

func TestMyRankingUnknownStudent(t *testing.T) {
	svc := NewRankingService(&mockRankingStudentRepo{}, nil, nil, 0, nil)

	_, err := svc.MyRanking(context.Background(), 99)
	require.Error(t, err)
}

func TestViewScoresAnnotatesStudents(t *testing.T) {
	repo := &mockRankingStudentRepo{students: []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(300)),
		rankedStudent(2, "East", "3rd", intPtr(150)),
	}}
	svc := NewRankingService(repo, nil, nil, 0, nil)

	ranked, pagination, err := svc.ViewScores(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	assert.Equal(t, 1, *ranked[0].CenterRank)
	assert.Equal(t, 2, *ranked[1].CenterRank)
	assert.Equal(t, 2, pagination.TotalCount)
}

type mockRankingCache struct {
	data map[string][]byte
	sets int
}

func newMockRankingCache() *mockRankingCache {
	return &mockRankingCache{data: map[string][]byte{}}
}

func (m *mockRankingCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockRankingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.sets++
	return nil
}

func (m *mockRankingCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.data = map[string][]byte{}
	return nil
}

func TestRankingCacheLookupsAreCounted(t *testing.T) {
	repo := &mockRankingStudentRepo{students: []models.Student{
		rankedStudent(1, "East", "3rd", intPtr(100)),
	}}
	cache := newMockRankingCache()
	metrics := NewMetricsService()
	svc := NewRankingService(repo, cache, metrics, time.Minute, nil)

	// Cold cache: the first lookup misses and populates the table.
	_, err := svc.MyRanking(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
	require.Equal(t, 1, cache.sets)

	_, err = svc.MyRanking(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, float64(0.5), testutil.ToFloat64(metrics.cacheHitRatio))
}
