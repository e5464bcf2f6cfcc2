package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/internal/repository"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
	"github.com/noah-isme/attendly-api/pkg/export"
	"github.com/noah-isme/attendly-api/pkg/jobs"
	"github.com/noah-isme/attendly-api/pkg/observability"
	"github.com/noah-isme/attendly-api/pkg/storage"
)

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
}

type exportSnapshotSource interface {
	Snapshot(ctx context.Context) ([]models.RankedStudent, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ExportStatusResponse reports job progress plus a signed download token
// once the artifact is ready.
type ExportStatusResponse struct {
	Job           *models.ExportJob `json:"job"`
	DownloadToken string            `json:"download_token,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
}

// ExportService renders the ranked score table to downloadable artifacts in
// the background.
type ExportService struct {
	repo    exportJobRepository
	source  exportSnapshotSource
	queue   jobDispatcher
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	xlsx    *export.XLSXExporter
	logger  *zap.Logger
}

// NewExportService constructs an ExportService instance.
func NewExportService(repo exportJobRepository, source exportSnapshotSource, queue jobDispatcher, store *storage.LocalStorage, signer *storage.SignedURLSigner, metrics *MetricsService, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		repo:    repo,
		source:  source,
		queue:   queue,
		storage: store,
		signer:  signer,
		metrics: metrics,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		xlsx:    export.NewXLSXExporter(),
		logger:  logger,
	}
}

// SetQueue wires the dispatcher after construction; the queue handler needs
// the service, so one side is attached late.
func (s *ExportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob registers an export request and enqueues it for rendering.
func (s *ExportService) CreateJob(ctx context.Context, format models.ExportFormat, requestedBy string) (*models.ExportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv, pdf or xlsx")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "exports are not enabled")
	}

	job := &models.ExportJob{Format: format}
	if requestedBy != "" {
		job.CreatedBy = &requestedBy
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "export_scores"}); err != nil {
		s.failJob(ctx, job.ID, "enqueue failed", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// Status returns job progress. Finished jobs carry a signed download token.
func (s *ExportService) Status(ctx context.Context, id string) (*ExportStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch export job")
	}

	resp := &ExportStatusResponse{Job: job}
	if job.Status == models.ExportDone && job.FilePath != nil && s.signer != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
		}
		resp.DownloadToken = token
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// Download validates a signed token and opens the rendered artifact.
func (s *ExportService) Download(ctx context.Context, token string) (*os.File, *models.ExportJob, error) {
	if s.signer == nil || s.storage == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "exports are not enabled")
	}
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch export job")
	}
	if job.Status != models.ExportDone || job.FilePath == nil || *job.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "export artifact not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export artifact")
	}
	return file, job, nil
}

// Process renders one queued export job. It runs on the worker pool.
func (s *ExportService) Process(ctx context.Context, queued jobs.Job) error {
	job, err := s.repo.GetByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", queued.ID, err)
	}
	if job.Status == models.ExportDone {
		return nil
	}

	s.updateStatus(ctx, job.ID, models.ExportProcessing, 10)

	snapshot, err := s.source.Snapshot(ctx)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to load score table", err)
		return fmt.Errorf("snapshot for export %s: %w", job.ID, err)
	}
	s.updateStatus(ctx, job.ID, models.ExportProcessing, 50)

	table := buildScoreTable(snapshot)
	data, err := s.render(job.Format, table)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to render export", err)
		return fmt.Errorf("render export %s: %w", job.ID, err)
	}

	filename := fmt.Sprintf("scores-%s.%s", job.ID, job.Format)
	relPath, err := s.storage.Save(filename, data)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to store export artifact", err)
		return fmt.Errorf("save export %s: %w", job.ID, err)
	}

	done := models.ExportDone
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:     &done,
		Progress:   &progress,
		FilePath:   &relPath,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish export %s: %w", job.ID, err)
	}
	s.metrics.RecordExportJob(string(models.ExportDone))

	s.logger.Info("export job finished",
		zap.String("job_id", job.ID),
		zap.String("format", string(job.Format)),
		zap.Int("rows", len(snapshot)))
	return nil
}

func (s *ExportService) render(format models.ExportFormat, table export.Table) ([]byte, error) {
	switch format {
	case models.ExportCSV:
		return s.csv.Render(table)
	case models.ExportPDF:
		return s.pdf.Render(table, "Student Scores")
	case models.ExportXLSX:
		return s.xlsx.Render(table, "Scores")
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

func (s *ExportService) updateStatus(ctx context.Context, id string, status models.ExportStatus, progress int) {
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{Status: &status, Progress: &progress}); err != nil {
		s.logger.Warn("failed to update export job", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *ExportService) failJob(ctx context.Context, id string, message string, cause error) {
	s.metrics.RecordExportJob(string(models.ExportFailed))
	observability.CaptureErr(cause)

	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	status := models.ExportFailed
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &status,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func buildScoreTable(students []models.RankedStudent) export.Table {
	table := export.Table{
		Headers: []string{"ID", "Name", "Center", "Grade", "Score", "Center Rank", "Grade Rank"},
		Rows:    make([][]string, 0, len(students)),
	}
	for _, student := range students {
		table.Rows = append(table.Rows, []string{
			strconv.FormatInt(student.ID, 10),
			student.Name,
			student.StudentRanking.MainCenter,
			student.StudentRanking.Grade,
			formatNullableInt(student.Score),
			formatNullableInt(student.CenterRank),
			formatNullableInt(student.GradeRank),
		})
	}
	return table
}

func formatNullableInt(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}
