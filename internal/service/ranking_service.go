package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendly-api/internal/models"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

const rankingTableCacheKey = "rankings:table:v1"

// RankingCachePattern matches every cached ranking artifact. Score writers
// invalidate with this pattern after each mutation.
const RankingCachePattern = "rankings:*"

type rankingStudentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	ListAll(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type rankingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RankingService computes per-center and per-grade standings. Rankings are
// derived on demand from the full student set and cached; they are never
// stored as columns.
type RankingService struct {
	students rankingStudentRepository
	cache    rankingCache
	metrics  *MetricsService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRankingService constructs a RankingService instance.
func NewRankingService(students rankingStudentRepository, cache rankingCache, metrics *MetricsService, cacheTTL time.Duration, logger *zap.Logger) *RankingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &RankingService{students: students, cache: cache, metrics: metrics, cacheTTL: cacheTTL, logger: logger}
}

// MyRanking returns the calling student's standing inside its center and
// grade partitions. Students without a score get null ranks but still see
// their partition names.
func (s *RankingService) MyRanking(ctx context.Context, studentID int64) (*models.StudentRanking, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch student")
	}

	table, err := s.table(ctx)
	if err != nil {
		return nil, err
	}

	ranking := models.StudentRanking{
		MainCenter: student.CenterGroup(),
		Grade:      student.GradeGroup(),
	}
	if entry, ok := table[studentID]; ok {
		ranking = entry
	}
	return &ranking, nil
}

// ViewScores returns a page of students annotated with their computed ranks.
func (s *RankingService) ViewScores(ctx context.Context, filter models.StudentFilter) ([]models.RankedStudent, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	table, err := s.table(ctx)
	if err != nil {
		return nil, nil, err
	}

	ranked := make([]models.RankedStudent, 0, len(students))
	for _, student := range students {
		ranked = append(ranked, s.annotate(student, table))
	}

	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return ranked, pagination, nil
}

// Snapshot returns every student annotated with ranks, ordered by id. Export
// rendering consumes this.
func (s *RankingService) Snapshot(ctx context.Context) ([]models.RankedStudent, error) {
	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}

	table, err := s.table(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]models.RankedStudent, 0, len(students))
	for _, student := range students {
		ranked = append(ranked, s.annotate(student, table))
	}
	return ranked, nil
}

// Invalidate drops every cached ranking artifact.
func (s *RankingService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, RankingCachePattern); err != nil {
		s.logger.Warn("failed to invalidate ranking cache", zap.Error(err))
	}
}

func (s *RankingService) annotate(student models.Student, table map[int64]models.StudentRanking) models.RankedStudent {
	entry, ok := table[student.ID]
	if !ok {
		entry = models.StudentRanking{
			MainCenter: student.CenterGroup(),
			Grade:      student.GradeGroup(),
		}
	}
	return models.RankedStudent{Student: student, StudentRanking: entry}
}

func (s *RankingService) table(ctx context.Context) (map[int64]models.StudentRanking, error) {
	if s.cache != nil {
		cached := map[int64]models.StudentRanking{}
		err := s.cache.Get(ctx, rankingTableCacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheLookup(true)
			return cached, nil
		}
		s.metrics.RecordCacheLookup(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("ranking cache read failed", zap.Error(err))
		}
	}

	students, err := s.students.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	table := computeRankingTable(students)

	if s.cache != nil {
		if err := s.cache.Set(ctx, rankingTableCacheKey, table, s.cacheTTL); err != nil {
			s.logger.Warn("ranking cache write failed", zap.Error(err))
		}
	}
	return table, nil
}

// computeRankingTable partitions scored students by center and by grade and
// ranks each partition by score descending. Ties break on the lower student
// id so repeated runs over the same data produce identical tables. Students
// with a null score are left out entirely.
func computeRankingTable(students []models.Student) map[int64]models.StudentRanking {
	table := make(map[int64]models.StudentRanking, len(students))

	byCenter := make(map[string][]models.Student)
	byGrade := make(map[string][]models.Student)
	for _, student := range students {
		if student.Score == nil {
			continue
		}
		byCenter[student.CenterGroup()] = append(byCenter[student.CenterGroup()], student)
		byGrade[student.GradeGroup()] = append(byGrade[student.GradeGroup()], student)
	}

	rank := func(group []models.Student, assign func(entry *models.StudentRanking, rank, total int)) {
		sort.Slice(group, func(i, j int) bool {
			if *group[i].Score != *group[j].Score {
				return *group[i].Score > *group[j].Score
			}
			return group[i].ID < group[j].ID
		})
		total := len(group)
		for idx, student := range group {
			entry := table[student.ID]
			entry.MainCenter = student.CenterGroup()
			entry.Grade = student.GradeGroup()
			assign(&entry, idx+1, total)
			table[student.ID] = entry
		}
	}

	for _, group := range byCenter {
		rank(group, func(entry *models.StudentRanking, position, total int) {
			entry.CenterRank = &position
			entry.CenterTotal = &total
		})
	}
	for _, group := range byGrade {
		rank(group, func(entry *models.StudentRanking, position, total int) {
			entry.GradeRank = &position
			entry.GradeTotal = &total
		})
	}

	return table
}
