package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/pkg/config"
	appErrors "github.com/noah-isme/attendly-api/pkg/errors"
)

type voucherRepository interface {
	List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, int, error)
	FindByID(ctx context.Context, id string) (*models.Voucher, error)
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	CreateBatch(ctx context.Context, vouchers []models.Voucher) error
	Update(ctx context.Context, voucher *models.Voucher) error
	Delete(ctx context.Context, id string) error
	ConsumeView(ctx context.Context, id string, studentID int64) (int, error)
}

type voucherWeekMarker interface {
	MarkVideoViewed(ctx context.Context, studentID int64, week int) error
}

type voucherSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.HomeworkVideoSession, error)
}

// CreateVouchersRequest asks for a batch of fresh codes sharing one policy.
type CreateVouchersRequest struct {
	NumberOfCodes int                 `json:"number_of_codes" validate:"required,min=1"`
	CodeSettings  models.CodeSettings `json:"code_settings" validate:"required"`
	NumberOfViews *int                `json:"number_of_views,omitempty"`
	DeadlineDate  *string             `json:"deadline_date,omitempty"`
	PaymentState  models.PaymentState `json:"payment_state,omitempty"`
}

// UpdateVoucherRequest carries a partial voucher edit; nil fields are left
// untouched. Switching code_settings clears the counterpart expiry field.
type UpdateVoucherRequest struct {
	CodeSettings  *models.CodeSettings `json:"code_settings,omitempty"`
	NumberOfViews *int                 `json:"number_of_views,omitempty"`
	DeadlineDate  *string              `json:"deadline_date,omitempty"`
	CodeState     *models.CodeState    `json:"code_state,omitempty"`
	PaymentState  *models.PaymentState `json:"payment_state,omitempty"`
}

// CheckVoucherRequest is a playback-gate probe sent when a student opens a
// homework video session.
type CheckVoucherRequest struct {
	Code      string `json:"code" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
}

// VoucherService owns the voucher lifecycle: batch generation, staff edits
// and the student-facing check that consumes views atomically.
type VoucherService struct {
	repo      voucherRepository
	weeks     voucherWeekMarker
	sessions  voucherSessionReader
	validator *validator.Validate
	logger    *zap.Logger
	config    config.VouchersConfig
}

// NewVoucherService constructs a VoucherService instance.
func NewVoucherService(repo voucherRepository, weeks voucherWeekMarker, sessions voucherSessionReader, validate *validator.Validate, logger *zap.Logger, cfg config.VouchersConfig) *VoucherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.GenerateMaxRetries <= 0 {
		cfg.GenerateMaxRetries = 5
	}
	return &VoucherService{repo: repo, weeks: weeks, sessions: sessions, validator: validate, logger: logger, config: cfg}
}

// List returns a page of vouchers.
func (s *VoucherService) List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	vouchers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vouchers")
	}

	pagination := &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	}
	return vouchers, pagination, nil
}

// Create generates a batch of unique codes under one expiry policy. Every
// code is born activated.
func (s *VoucherService) Create(ctx context.Context, req CreateVouchersRequest, creatorName string) ([]models.Voucher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid voucher payload")
	}
	if req.NumberOfCodes > s.config.MaxBatchSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot create more than %d codes per request", s.config.MaxBatchSize))
	}
	if !req.CodeSettings.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "code_settings must be number_of_views or deadline_date")
	}

	var views *int
	var deadline *models.Date
	switch req.CodeSettings {
	case models.CodeSettingsViews:
		if req.NumberOfViews == nil || *req.NumberOfViews < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "number_of_views must be at least 1")
		}
		v := *req.NumberOfViews
		views = &v
	case models.CodeSettingsDeadline:
		if req.DeadlineDate == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_date is required")
		}
		parsed, err := models.ParseDate(*req.DeadlineDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if !models.DateOf(time.Now().UTC()).Before(parsed) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_date must be in the future")
		}
		deadline = &parsed
	}

	payment := req.PaymentState
	if payment == "" {
		payment = models.PaymentNotPaid
	}
	if !payment.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment_state must be Paid or Not Paid")
	}

	vouchers := make([]models.Voucher, 0, req.NumberOfCodes)
	seen := make(map[string]struct{}, req.NumberOfCodes)
	for i := 0; i < req.NumberOfCodes; i++ {
		code, err := s.uniqueCode(ctx, seen)
		if err != nil {
			return nil, err
		}
		seen[code] = struct{}{}

		var madeBy *string
		if creatorName != "" {
			name := creatorName
			madeBy = &name
		}
		vouchers = append(vouchers, models.Voucher{
			Code:          code,
			CodeSettings:  req.CodeSettings,
			NumberOfViews: views,
			DeadlineDate:  deadline,
			CodeState:     models.CodeStateActivated,
			PaymentState:  payment,
			MadeBy:        madeBy,
		})
	}

	if err := s.repo.CreateBatch(ctx, vouchers); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create vouchers")
	}
	return vouchers, nil
}

// Update applies a partial edit to a voucher.
func (s *VoucherService) Update(ctx context.Context, id string, req UpdateVoucherRequest) (*models.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "voucher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch voucher")
	}

	if req.CodeSettings != nil {
		if !req.CodeSettings.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "code_settings must be number_of_views or deadline_date")
		}
		if voucher.CodeSettings != *req.CodeSettings {
			voucher.CodeSettings = *req.CodeSettings
			voucher.NumberOfViews = nil
			voucher.DeadlineDate = nil
		}
	}
	if req.NumberOfViews != nil {
		if voucher.CodeSettings != models.CodeSettingsViews {
			return nil, appErrors.Clone(appErrors.ErrValidation, "number_of_views only applies to view-count vouchers")
		}
		if *req.NumberOfViews < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "number_of_views cannot be negative")
		}
		v := *req.NumberOfViews
		voucher.NumberOfViews = &v
	}
	if req.DeadlineDate != nil {
		if voucher.CodeSettings != models.CodeSettingsDeadline {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_date only applies to deadline vouchers")
		}
		parsed, err := models.ParseDate(*req.DeadlineDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if !models.DateOf(time.Now().UTC()).Before(parsed) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_date must be in the future")
		}
		voucher.DeadlineDate = &parsed
	}
	if req.CodeState != nil {
		if !req.CodeState.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "code_state must be Activated or Deactivated")
		}
		voucher.CodeState = *req.CodeState
	}
	if req.PaymentState != nil {
		if !req.PaymentState.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payment_state must be Paid or Not Paid")
		}
		voucher.PaymentState = *req.PaymentState
	}

	switch voucher.CodeSettings {
	case models.CodeSettingsViews:
		if voucher.NumberOfViews == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "number_of_views is required for view-count vouchers")
		}
	case models.CodeSettingsDeadline:
		if voucher.DeadlineDate == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "deadline_date is required for deadline vouchers")
		}
	}

	if err := s.repo.Update(ctx, voucher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "voucher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update voucher")
	}
	return voucher, nil
}

// Delete removes a voucher.
func (s *VoucherService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "voucher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete voucher")
	}
	return nil
}

// Check runs the playback gate for one code. Business rejections come back
// inside the result with Success=false; only infrastructure failures return
// an error. A successful check of a view-count voucher consumes one view and
// pins the code to the calling student in a single conditional update.
func (s *VoucherService) Check(ctx context.Context, req CheckVoucherRequest, claims *models.JWTClaims) (*models.VoucherCheckResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check payload")
	}

	if len(req.Code) != voucherCodeLength {
		return reject("incorrect code"), nil
	}

	voucher, err := s.repo.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reject("incorrect code"), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch voucher")
	}

	if voucher.CodeState != models.CodeStateActivated {
		return reject("code is deactivated"), nil
	}

	switch voucher.CodeSettings {
	case models.CodeSettingsDeadline:
		today := models.DateOf(time.Now().UTC())
		if voucher.DeadlineDate == nil || !today.Before(*voucher.DeadlineDate) {
			return reject("code is expired"), nil
		}
		s.markVideoViewed(ctx, claims, req.SessionID)
		return &models.VoucherCheckResult{
			Success:      true,
			Valid:        true,
			VoucherID:    voucher.ID,
			CodeSettings: voucher.CodeSettings,
			DeadlineDate: voucher.DeadlineDate,
		}, nil

	case models.CodeSettingsViews:
		if claims == nil || claims.StudentID == nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "a student account is required to use this code")
		}
		remaining, err := s.repo.ConsumeView(ctx, voucher.ID, *claims.StudentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return reject(s.consumeRejection(ctx, voucher.ID, *claims.StudentID)), nil
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume view")
		}
		s.markVideoViewed(ctx, claims, req.SessionID)
		return &models.VoucherCheckResult{
			Success:       true,
			Valid:         true,
			VoucherID:     voucher.ID,
			CodeSettings:  voucher.CodeSettings,
			NumberOfViews: &remaining,
		}, nil
	}

	return reject("incorrect code"), nil
}

// ConfirmView acknowledges that playback actually started. View consumption
// already happened during Check, so this only reports the remaining budget.
func (s *VoucherService) ConfirmView(ctx context.Context, voucherID string) (*models.VoucherCheckResult, error) {
	voucher, err := s.repo.FindByID(ctx, voucherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "voucher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch voucher")
	}

	result := &models.VoucherCheckResult{
		Success:      true,
		Valid:        true,
		VoucherID:    voucher.ID,
		CodeSettings: voucher.CodeSettings,
		DeadlineDate: voucher.DeadlineDate,
	}
	if voucher.CodeSettings == models.CodeSettingsViews {
		result.NumberOfViews = voucher.NumberOfViews
	}
	return result, nil
}

// consumeRejection re-reads the voucher to translate a failed conditional
// update into a specific rejection message.
func (s *VoucherService) consumeRejection(ctx context.Context, id string, studentID int64) string {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "code already used"
	}
	if voucher.CodeState != models.CodeStateActivated {
		return "code is deactivated"
	}
	if voucher.ViewedBy != nil && *voucher.ViewedBy != studentID {
		return "code already used by another student"
	}
	if voucher.NumberOfViews == nil || *voucher.NumberOfViews <= 0 {
		return "code has no views remaining"
	}
	return "code already used"
}

func (s *VoucherService) markVideoViewed(ctx context.Context, claims *models.JWTClaims, sessionID string) {
	if claims == nil || claims.StudentID == nil || sessionID == "" || s.sessions == nil || s.weeks == nil {
		return
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		s.logger.Warn("failed to resolve session for view tracking", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if session.Week == nil {
		return
	}
	if err := s.weeks.MarkVideoViewed(ctx, *claims.StudentID, *session.Week); err != nil {
		s.logger.Warn("failed to mark homework video viewed",
			zap.Int64("student_id", *claims.StudentID),
			zap.Int("week", *session.Week),
			zap.Error(err))
	}
}

func reject(message string) *models.VoucherCheckResult {
	return &models.VoucherCheckResult{Success: false, Valid: false, Error: message}
}

const (
	voucherCodeLength = 9
	codeDigits        = "0123456789"
	codeUppercase     = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLowercase     = "abcdefghjkmnpqrstuvwxyz"
)

// uniqueCode generates codes until one is unused, bounded by the configured
// retry budget. The in-batch set guards codes not yet persisted.
func (s *VoucherService) uniqueCode(ctx context.Context, pending map[string]struct{}) (string, error) {
	for attempt := 0; attempt < s.config.GenerateMaxRetries; attempt++ {
		code, err := generateVoucherCode()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
		}
		if _, taken := pending[code]; taken {
			continue
		}
		exists, err := s.repo.ExistsByCode(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
		}
		if !exists {
			return code, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not generate a unique code")
}

// generateVoucherCode builds a 9-character code from 5 digits, 2 uppercase
// and 2 lowercase letters, shuffled so the class positions are unpredictable.
func generateVoucherCode() (string, error) {
	chars := make([]byte, 0, voucherCodeLength)
	pick := func(alphabet string, n int) error {
		for i := 0; i < n; i++ {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return err
			}
			chars = append(chars, alphabet[idx.Int64()])
		}
		return nil
	}
	if err := pick(codeDigits, 5); err != nil {
		return "", err
	}
	if err := pick(codeUppercase, 2); err != nil {
		return "", err
	}
	if err := pick(codeLowercase, 2); err != nil {
		return "", err
	}

	for i := len(chars) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		chars[i], chars[int(j.Int64())] = chars[int(j.Int64())], chars[i]
	}
	return string(chars), nil
}
