package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendly-api/internal/models"
)

// VoucherRepository handles voucher persistence.
type VoucherRepository struct {
	db *sqlx.DB
}

// NewVoucherRepository creates a new voucher repository.
func NewVoucherRepository(db *sqlx.DB) *VoucherRepository {
	return &VoucherRepository{db: db}
}

var voucherSortColumns = map[string]string{
	"code":            "v.code",
	"code_state":      "v.code_state",
	"payment_state":   "v.payment_state",
	"number_of_views": "v.number_of_views",
	"deadline_date":   "v.deadline_date",
	"created_at":      "v.created_at",
}

const voucherColumns = `v.id, v.code, v.code_settings, v.number_of_views, v.deadline_date,
    v.code_state, v.payment_state, v.viewed, v.viewed_by, v.made_by, v.created_at, v.updated_at`

// List returns vouchers matching the filter plus the unpaginated total.
// Search matches a code prefix or a creator-name substring, case-insensitive.
func (r *VoucherRepository) List(ctx context.Context, filter models.VoucherFilter) ([]models.Voucher, int, error) {
	where := "WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		args = append(args, filter.Search+"%", "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND (v.code ILIKE $%d OR u.full_name ILIKE $%d)", len(args)-1, len(args))
	}
	if filter.Viewed != nil {
		args = append(args, *filter.Viewed)
		where += fmt.Sprintf(" AND v.viewed = $%d", len(args))
	}
	if filter.CodeState != "" {
		args = append(args, filter.CodeState)
		where += fmt.Sprintf(" AND v.code_state = $%d", len(args))
	}
	if filter.PaymentState != "" {
		args = append(args, filter.PaymentState)
		where += fmt.Sprintf(" AND v.payment_state = $%d", len(args))
	}

	const base = " FROM vouchers v LEFT JOIN users u ON u.id = v.made_by "

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT count(*)"+base+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count vouchers: %w", err)
	}

	sortBy, ok := voucherSortColumns[filter.SortBy]
	if !ok {
		sortBy = "v.created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}

	query := "SELECT " + voucherColumns + base + where + fmt.Sprintf(" ORDER BY %s %s NULLS LAST", sortBy, order)
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Page > 1 {
			args = append(args, (filter.Page-1)*filter.PageSize)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	var vouchers []models.Voucher
	if err := r.db.SelectContext(ctx, &vouchers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list vouchers: %w", err)
	}
	return vouchers, total, nil
}

// FindByID fetches a single voucher.
func (r *VoucherRepository) FindByID(ctx context.Context, id string) (*models.Voucher, error) {
	query := "SELECT " + voucherColumns + " FROM vouchers v WHERE v.id = $1"
	var voucher models.Voucher
	if err := r.db.GetContext(ctx, &voucher, query, id); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// FindByCode fetches a voucher by case-insensitive exact code match.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	query := "SELECT " + voucherColumns + " FROM vouchers v WHERE upper(v.code) = upper($1)"
	var voucher models.Voucher
	if err := r.db.GetContext(ctx, &voucher, query, code); err != nil {
		return nil, err
	}
	return &voucher, nil
}

// ExistsByCode reports whether a voucher with this code already exists.
func (r *VoucherRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM vouchers WHERE upper(code) = upper($1))", code); err != nil {
		return false, fmt.Errorf("check voucher code: %w", err)
	}
	return exists, nil
}

// CreateBatch inserts a batch of vouchers in one transaction.
func (r *VoucherRepository) CreateBatch(ctx context.Context, vouchers []models.Voucher) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range vouchers {
		if vouchers[i].ID == "" {
			vouchers[i].ID = uuid.NewString()
		}
		vouchers[i].CreatedAt = now
		vouchers[i].UpdatedAt = now
		const query = `INSERT INTO vouchers (id, code, code_settings, number_of_views, deadline_date, code_state, payment_state, viewed, viewed_by, made_by, created_at, updated_at)
            VALUES (:id, :code, :code_settings, :number_of_views, :deadline_date, :code_state, :payment_state, :viewed, :viewed_by, :made_by, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, vouchers[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert voucher: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vouchers: %w", err)
	}
	return nil
}

// Update stores voucher settings and state.
func (r *VoucherRepository) Update(ctx context.Context, voucher *models.Voucher) error {
	voucher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE vouchers SET code_settings = :code_settings, number_of_views = :number_of_views,
        deadline_date = :deadline_date, code_state = :code_state, payment_state = :payment_state,
        viewed = :viewed, viewed_by = :viewed_by, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, voucher)
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a voucher by id.
func (r *VoucherRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM vouchers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete voucher: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ConsumeView pins the voucher to the student and decrements the remaining
// views in a single conditional update, so two concurrent checks can never
// both succeed on the last view. Returns the remaining views, or ErrNoRows
// when the voucher is not consumable by this student.
func (r *VoucherRepository) ConsumeView(ctx context.Context, id string, studentID int64) (int, error) {
	const query = `UPDATE vouchers
        SET viewed = TRUE, viewed_by = $2, number_of_views = number_of_views - 1, updated_at = now()
        WHERE id = $1
          AND code_state = $3
          AND code_settings = $4
          AND number_of_views > 0
          AND (viewed_by IS NULL OR viewed_by = $2)
        RETURNING number_of_views`
	var remaining int
	if err := r.db.GetContext(ctx, &remaining, query, id, studentID, models.CodeStateActivated, models.CodeSettingsViews); err != nil {
		return 0, err
	}
	return remaining, nil
}
