package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendly-api/internal/models"
)

func newVoucherRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func voucherRows(id, code string, views interface{}, viewedBy interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "code", "code_settings", "number_of_views", "deadline_date", "code_state", "payment_state", "viewed", "viewed_by", "made_by", "created_at", "updated_at"}).
		AddRow(id, code, models.CodeSettingsViews, views, nil, models.CodeStateActivated, models.PaymentNotPaid, false, viewedBy, "Staff", time.Now(), time.Now())
}

func TestVoucherRepositoryFindByCode(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE upper(v.code) = upper($1)")).
		WithArgs("12345ABcd").
		WillReturnRows(voucherRows("v-1", "12345ABcd", 3, nil))

	voucher, err := repo.FindByCode(context.Background(), "12345ABcd")
	require.NoError(t, err)
	require.Equal(t, "v-1", voucher.ID)
	require.NotNil(t, voucher.NumberOfViews)
	require.Equal(t, 3, *voucher.NumberOfViews)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryExistsByCode(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM vouchers WHERE upper(code) = upper($1))")).
		WithArgs("12345ABcd").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByCode(context.Background(), "12345ABcd")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryConsumeView(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE vouchers")).
		WithArgs("v-1", int64(9), models.CodeStateActivated, models.CodeSettingsViews).
		WillReturnRows(sqlmock.NewRows([]string{"number_of_views"}).AddRow(2))

	remaining, err := repo.ConsumeView(context.Background(), "v-1", 9)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryConsumeViewRejected(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	// The conditional update matches no row when the voucher is exhausted,
	// deactivated or pinned to another student.
	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE vouchers")).
		WithArgs("v-1", int64(9), models.CodeStateActivated, models.CodeSettingsViews).
		WillReturnRows(sqlmock.NewRows([]string{"number_of_views"}))

	_, err := repo.ConsumeView(context.Background(), "v-1", 9)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*)")).
		WithArgs(true, models.CodeStateActivated).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM vouchers v LEFT JOIN users u")).
		WithArgs(true, models.CodeStateActivated, 10).
		WillReturnRows(voucherRows("v-1", "12345ABcd", 0, int64(9)))

	viewed := true
	vouchers, total, err := repo.List(context.Background(), models.VoucherFilter{
		Viewed:    &viewed,
		CodeState: models.CodeStateActivated,
		Page:      1,
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, vouchers, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vouchers SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Voucher{ID: "missing", CodeSettings: models.CodeSettingsViews})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoucherRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newVoucherRepoMock(t)
	defer cleanup()

	repo := NewVoucherRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vouchers WHERE id = $1")).
		WithArgs("v-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "v-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
