package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendly-api/internal/models"
	"github.com/noah-isme/attendly-api/pkg/config"
)

type mockVoucherRepo struct {
	vouchers map[string]*models.Voucher
	existing map[string]bool
}

func newMockVoucherRepo() *mockVoucherRepo {
	return &mockVoucherRepo{vouchers: map[string]*models.Voucher{}, existing: map[string]bool{}}
}

func (m *mockVoucherRepo) List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, int, error) {
	result := make([]models.Voucher, 0, len(m.vouchers))
	for _, v := range m.vouchers {
		result = append(result, *v)
	}
	return result, len(result), nil
}

func (m *mockVoucherRepo) FindByID(ctx context.Context, id string) (*models.Voucher, error) {
	if v, ok := m.vouchers[id]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockVoucherRepo) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	for _, v := range m.vouchers {
		if v.Code == code {
			copied := *v
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockVoucherRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return m.existing[code], nil
}

func (m *mockVoucherRepo) CreateBatch(ctx context.Context, vouchers []models.Voucher) error {
	for i := range vouchers {
		v := vouchers[i]
		if v.ID == "" {
			v.ID = v.Code
		}
		m.vouchers[v.ID] = &v
	}
	return nil
}

func (m *mockVoucherRepo) Update(ctx context.Context, voucher *models.Voucher) error {
	if _, ok := m.vouchers[voucher.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *voucher
	m.vouchers[voucher.ID] = &copied
	return nil
}

func (m *mockVoucherRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.vouchers[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.vouchers, id)
	return nil
}

func (m *mockVoucherRepo) ConsumeView(ctx context.Context, id string, studentID int64) (int, error) {
	v, ok := m.vouchers[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if v.CodeState != models.CodeStateActivated || v.CodeSettings != models.CodeSettingsViews {
		return 0, sql.ErrNoRows
	}
	if v.NumberOfViews == nil || *v.NumberOfViews <= 0 {
		return 0, sql.ErrNoRows
	}
	if v.ViewedBy != nil && *v.ViewedBy != studentID {
		return 0, sql.ErrNoRows
	}
	remaining := *v.NumberOfViews - 1
	v.NumberOfViews = &remaining
	v.Viewed = true
	v.ViewedBy = &studentID
	return remaining, nil
}

type mockWeekMarker struct {
	marked [][2]int64
}

func (m *mockWeekMarker) MarkVideoViewed(ctx context.Context, studentID int64, week int) error {
	m.marked = append(m.marked, [2]int64{studentID, int64(week)})
	return nil
}

type mockSessionReader struct {
	sessions map[string]*models.HomeworkVideoSession
}

func (m *mockSessionReader) FindByID(ctx context.Context, id string) (*models.HomeworkVideoSession, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func newVoucherService(repo *mockVoucherRepo, weeks *mockWeekMarker, sessions *mockSessionReader) *VoucherService {
	return NewVoucherService(repo, weeks, sessions, nil, nil, config.VouchersConfig{MaxBatchSize: 50, GenerateMaxRetries: 5})
}

func studentClaims(studentID int64) *models.JWTClaims {
	return &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, StudentID: &studentID}
}

func seedViewsVoucher(repo *mockVoucherRepo, code string, views int) *models.Voucher {
	v := &models.Voucher{
		ID:            "v-" + code,
		Code:          code,
		CodeSettings:  models.CodeSettingsViews,
		NumberOfViews: &views,
		CodeState:     models.CodeStateActivated,
		PaymentState:  models.PaymentNotPaid,
	}
	repo.vouchers[v.ID] = v
	return v
}

func TestGenerateVoucherCodeComposition(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateVoucherCode()
		require.NoError(t, err)
		require.Len(t, code, 9)

		digits, upper, lower := 0, 0, 0
		for _, r := range code {
			switch {
			case r >= '0' && r <= '9':
				digits++
			case r >= 'A' && r <= 'Z':
				upper++
			case r >= 'a' && r <= 'z':
				lower++
			default:
				t.Fatalf("unexpected character %q in code %q", r, code)
			}
		}
		assert.Equal(t, 5, digits, code)
		assert.Equal(t, 2, upper, code)
		assert.Equal(t, 2, lower, code)
	}
}

func TestCreateVouchersBatch(t *testing.T) {
	repo := newMockVoucherRepo()
	svc := newVoucherService(repo, nil, nil)

	views := 3
	vouchers, err := svc.Create(context.Background(), CreateVouchersRequest{
		NumberOfCodes: 5,
		CodeSettings:  models.CodeSettingsViews,
		NumberOfViews: &views,
	}, "Admin One")
	require.NoError(t, err)
	require.Len(t, vouchers, 5)

	codes := map[string]struct{}{}
	for _, v := range vouchers {
		codes[v.Code] = struct{}{}
		assert.Equal(t, models.CodeStateActivated, v.CodeState)
		assert.Equal(t, models.PaymentNotPaid, v.PaymentState)
		assert.Equal(t, 3, *v.NumberOfViews)
		assert.Nil(t, v.DeadlineDate)
		require.NotNil(t, v.MadeBy)
		assert.Equal(t, "Admin One", *v.MadeBy)
	}
	assert.Len(t, codes, 5)
}

func TestCreateVouchersRejectsOversizedBatch(t *testing.T) {
	svc := newVoucherService(newMockVoucherRepo(), nil, nil)

	views := 1
	_, err := svc.Create(context.Background(), CreateVouchersRequest{
		NumberOfCodes: 51,
		CodeSettings:  models.CodeSettingsViews,
		NumberOfViews: &views,
	}, "")
	require.Error(t, err)
}

func TestCreateVouchersRejectsPastDeadline(t *testing.T) {
	svc := newVoucherService(newMockVoucherRepo(), nil, nil)

	yesterday := models.DateOf(time.Now().UTC().AddDate(0, 0, -1)).String()
	_, err := svc.Create(context.Background(), CreateVouchersRequest{
		NumberOfCodes: 1,
		CodeSettings:  models.CodeSettingsDeadline,
		DeadlineDate:  &yesterday,
	}, "")
	require.Error(t, err)
}

func TestCheckRejectsWrongLength(t *testing.T) {
	svc := newVoucherService(newMockVoucherRepo(), nil, nil)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "short"}, studentClaims(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.False(t, result.Valid)
	assert.Equal(t, "incorrect code", result.Error)
}

func TestCheckRejectsUnknownCode(t *testing.T) {
	svc := newVoucherService(newMockVoucherRepo(), nil, nil)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "incorrect code", result.Error)
}

func TestCheckDeactivationWinsOverEverything(t *testing.T) {
	repo := newMockVoucherRepo()
	v := seedViewsVoucher(repo, "12345ABcd", 5)
	v.CodeState = models.CodeStateDeactivated
	svc := newVoucherService(repo, nil, nil)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "code is deactivated", result.Error)
	assert.Equal(t, 5, *v.NumberOfViews)
}

func TestCheckConsumesViewAndPinsStudent(t *testing.T) {
	repo := newMockVoucherRepo()
	v := seedViewsVoucher(repo, "12345ABcd", 1)
	svc := newVoucherService(repo, nil, nil)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(42))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 0, *result.NumberOfViews)
	assert.Equal(t, int64(42), *v.ViewedBy)
	assert.True(t, v.Viewed)
	assert.Equal(t, 0, *v.NumberOfViews)
}

func TestCheckRejectsExhaustedVoucher(t *testing.T) {
	repo := newMockVoucherRepo()
	seedViewsVoucher(repo, "12345ABcd", 1)
	svc := newVoucherService(repo, nil, nil)

	first, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(42))
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(42))
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, "code has no views remaining", second.Error)
}

func TestCheckRejectsOtherStudentOnPinnedVoucher(t *testing.T) {
	repo := newMockVoucherRepo()
	seedViewsVoucher(repo, "12345ABcd", 3)
	svc := newVoucherService(repo, nil, nil)

	_, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(1))
	require.NoError(t, err)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd"}, studentClaims(2))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "code already used by another student", result.Error)
}

func TestCheckDeadlineBoundaries(t *testing.T) {
	repo := newMockVoucherRepo()
	tomorrow := models.DateOf(time.Now().UTC().AddDate(0, 0, 1))
	today := models.DateOf(time.Now().UTC())

	valid := &models.Voucher{
		ID: "v1", Code: "11111AAaa",
		CodeSettings: models.CodeSettingsDeadline,
		DeadlineDate: &tomorrow,
		CodeState:    models.CodeStateActivated,
		PaymentState: models.PaymentNotPaid,
	}
	expired := &models.Voucher{
		ID: "v2", Code: "22222BBbb",
		CodeSettings: models.CodeSettingsDeadline,
		DeadlineDate: &today,
		CodeState:    models.CodeStateActivated,
		PaymentState: models.PaymentNotPaid,
	}
	repo.vouchers[valid.ID] = valid
	repo.vouchers[expired.ID] = expired
	svc := newVoucherService(repo, nil, nil)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "11111AAaa"}, studentClaims(1))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.DeadlineDate)

	result, err = svc.Check(context.Background(), CheckVoucherRequest{Code: "22222BBbb"}, studentClaims(1))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "code is expired", result.Error)
}

func TestCheckMarksHomeworkVideoViewed(t *testing.T) {
	repo := newMockVoucherRepo()
	seedViewsVoucher(repo, "12345ABcd", 2)
	weeks := &mockWeekMarker{}
	week := 4
	sessions := &mockSessionReader{sessions: map[string]*models.HomeworkVideoSession{
		"s1": {ID: "s1", Week: &week, Grade: "3rd"},
	}}
	svc := newVoucherService(repo, weeks, sessions)

	result, err := svc.Check(context.Background(), CheckVoucherRequest{Code: "12345ABcd", SessionID: "s1"}, studentClaims(9))
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Len(t, weeks.marked, 1)
	assert.Equal(t, int64(9), weeks.marked[0][0])
	assert.Equal(t, int64(4), weeks.marked[0][1])
}

func TestConfirmViewReportsRemainingViews(t *testing.T) {
	repo := newMockVoucherRepo()
	v := seedViewsVoucher(repo, "12345ABcd", 2)
	svc := newVoucherService(repo, nil, nil)

	result, err := svc.ConfirmView(context.Background(), v.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, *result.NumberOfViews)
}

func TestUpdateSwitchingModeClearsCounterpart(t *testing.T) {
	repo := newMockVoucherRepo()
	v := seedViewsVoucher(repo, "12345ABcd", 2)
	svc := newVoucherService(repo, nil, nil)

	deadline := models.DateOf(time.Now().UTC().AddDate(0, 0, 7)).String()
	mode := models.CodeSettingsDeadline
	updated, err := svc.Update(context.Background(), v.ID, UpdateVoucherRequest{
		CodeSettings: &mode,
		DeadlineDate: &deadline,
	})
	require.NoError(t, err)

	assert.Equal(t, models.CodeSettingsDeadline, updated.CodeSettings)
	assert.Nil(t, updated.NumberOfViews)
	require.NotNil(t, updated.DeadlineDate)
	assert.Equal(t, deadline, updated.DeadlineDate.String())
}
