package models

import "time"

// SessionPaymentState controls who may open a homework video session.
type SessionPaymentState string

const (
	SessionPaid           SessionPaymentState = "paid"
	SessionFree           SessionPaymentState = "free"
	SessionFreeIfAttended SessionPaymentState = "free_if_attended"
)

// Valid reports whether the payment state is known.
func (s SessionPaymentState) Valid() bool {
	switch s {
	case SessionPaid, SessionFree, SessionFreeIfAttended:
		return true
	}
	return false
}

// SessionVideo is one externally hosted video inside a session.
type SessionVideo struct {
	ID        string `db:"id" json:"id"`
	SessionID string `db:"session_id" json:"-"`
	Position  int    `db:"position" json:"position"`
	VideoID   string `db:"video_id" json:"video_id"`
	VideoType string `db:"video_type" json:"video_type"`
	VideoName string `db:"video_name" json:"video_name,omitempty"`
}

// HomeworkVideoSession bundles one or more videos for a grade and week. The
// grade+week pair is unique among sessions with a non-null week.
type HomeworkVideoSession struct {
	ID           string              `db:"id" json:"id"`
	Week         *int                `db:"week" json:"week,omitempty"`
	Grade        string              `db:"grade" json:"grade"`
	PaymentState SessionPaymentState `db:"payment_state" json:"payment_state"`
	Name         string              `db:"name" json:"name"`
	Description  *string             `db:"description" json:"description,omitempty"`
	Videos       []SessionVideo      `db:"-" json:"videos"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// SessionFilter captures list filtering criteria for sessions.
type SessionFilter struct {
	Grade    string
	Week     *int
	Page     int
	PageSize int
}
