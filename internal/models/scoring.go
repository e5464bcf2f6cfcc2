package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConditionType identifies which engagement signal a scoring condition maps
// to points.
type ConditionType string

const (
	ConditionAttendance ConditionType = "attendance"
	ConditionHomework   ConditionType = "homework"
	ConditionQuiz       ConditionType = "quiz"
)

// Valid reports whether the condition type is known.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionAttendance, ConditionHomework, ConditionQuiz:
		return true
	}
	return false
}

// Attendance rule keys.
const (
	AttendanceKeyAttend = "attend"
	AttendanceKeyAbsent = "absent"
)

// ScoringRule is a single rule table entry. Which fields are meaningful
// depends on the owning condition's type: attendance rules match Key,
// range rules (quiz, homework with degree) match [Min, Max], and plain
// homework rules match HomeworkDone exactly.
type ScoringRule struct {
	Key          string          `json:"key,omitempty"`
	Min          *float64        `json:"min,omitempty"`
	Max          *float64        `json:"max,omitempty"`
	HomeworkDone *HomeworkStatus `json:"hw_done,omitempty"`
	Points       int             `json:"points"`
}

// BonusCondition is the streak predicate of a bonus rule: the last LastN
// consecutive weeks must all satisfy the secondary condition.
type BonusCondition struct {
	LastN        int             `json:"last_n"`
	Percentage   *float64        `json:"percentage,omitempty"`
	HomeworkDone *HomeworkStatus `json:"hw_done,omitempty"`
}

// BonusRule awards extra points when its streak condition holds.
type BonusRule struct {
	Condition BonusCondition `json:"condition"`
	Points    int            `json:"points"`
}

// RuleList is an ordered rule collection stored as JSONB.
type RuleList []ScoringRule

// Value implements driver.Valuer.
func (l RuleList) Value() (driver.Value, error) {
	if l == nil {
		l = RuleList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *RuleList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// BonusRuleList is an ordered bonus rule collection stored as JSONB.
type BonusRuleList []BonusRule

// Value implements driver.Valuer.
func (l BonusRuleList) Value() (driver.Value, error) {
	if l == nil {
		l = BonusRuleList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *BonusRuleList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	case nil:
		return nil
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
}

// ScoringCondition maps attendance/homework/quiz outcomes to point deltas.
// Rules is never empty; WithDegree is only meaningful for homework.
type ScoringCondition struct {
	ID         string        `db:"id" json:"id"`
	Type       ConditionType `db:"type" json:"type"`
	WithDegree bool          `db:"with_degree" json:"with_degree"`
	Rules      RuleList      `db:"rules" json:"rules"`
	BonusRules BonusRuleList `db:"bonus_rules" json:"bonus_rules"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// ScoringHistory records one applied point delta for idempotency probes.
type ScoringHistory struct {
	ID          string        `db:"id" json:"id"`
	StudentID   int64         `db:"student_id" json:"student_id"`
	Type        ConditionType `db:"type" json:"type"`
	Week        *int          `db:"week" json:"week,omitempty"`
	Points      int           `db:"points" json:"points"`
	BonusPoints int           `db:"bonus_points" json:"bonus_points"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
