package models

import "time"

// CodeSettings selects the voucher expiry policy.
type CodeSettings string

const (
	// CodeSettingsViews limits a voucher to a fixed number of views by a
	// single student.
	CodeSettingsViews CodeSettings = "number_of_views"
	// CodeSettingsDeadline allows unlimited views until a calendar date.
	CodeSettingsDeadline CodeSettings = "deadline_date"
)

// Valid reports whether the settings value is known.
func (s CodeSettings) Valid() bool {
	return s == CodeSettingsViews || s == CodeSettingsDeadline
}

// CodeState is the staff-controlled activation switch.
type CodeState string

const (
	CodeStateActivated   CodeState = "Activated"
	CodeStateDeactivated CodeState = "Deactivated"
)

// Valid reports whether the state value is known.
func (s CodeState) Valid() bool {
	return s == CodeStateActivated || s == CodeStateDeactivated
}

// PaymentState tracks whether the voucher has been paid for.
type PaymentState string

const (
	PaymentPaid    PaymentState = "Paid"
	PaymentNotPaid PaymentState = "Not Paid"
)

// Valid reports whether the payment state is known.
func (s PaymentState) Valid() bool {
	return s == PaymentPaid || s == PaymentNotPaid
}

// Voucher is a single-use or deadline-bound access code gating a homework
// video session. Exactly one of NumberOfViews / DeadlineDate is populated,
// matching CodeSettings. Under view-count mode the first successful check
// pins the code to one student via ViewedBy.
type Voucher struct {
	ID            string       `db:"id" json:"id"`
	Code          string       `db:"code" json:"code"`
	CodeSettings  CodeSettings `db:"code_settings" json:"code_settings"`
	NumberOfViews *int         `db:"number_of_views" json:"number_of_views,omitempty"`
	DeadlineDate  *Date        `db:"deadline_date" json:"deadline_date,omitempty"`
	CodeState     CodeState    `db:"code_state" json:"code_state"`
	PaymentState  PaymentState `db:"payment_state" json:"payment_state"`
	Viewed        bool         `db:"viewed" json:"viewed"`
	ViewedBy      *int64       `db:"viewed_by" json:"viewed_by,omitempty"`
	MadeBy        *string      `db:"made_by" json:"made_by,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// VoucherFilter captures list filtering criteria.
type VoucherFilter struct {
	Search       string
	Viewed       *bool
	CodeState    CodeState
	PaymentState PaymentState
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// VoucherCheckResult is the body of a voucher check response. Business-rule
// rejections (wrong code, expired, exhausted) are reported here with a 200
// status; only transport or persistence failures surface as HTTP errors.
type VoucherCheckResult struct {
	Success       bool         `json:"success"`
	Valid         bool         `json:"valid"`
	Error         string       `json:"error,omitempty"`
	VoucherID     string       `json:"voucher_id,omitempty"`
	CodeSettings  CodeSettings `json:"code_settings,omitempty"`
	NumberOfViews *int         `json:"number_of_views,omitempty"`
	DeadlineDate  *Date        `json:"deadline_date,omitempty"`
}
