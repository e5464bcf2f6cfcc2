package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnknownGroup is the ranking partition assigned to students whose center or
// grade is missing.
const UnknownGroup = "Unknown"

// HomeworkStatus captures the homework-completion state of a week. The legacy
// system stored a mixed-type field (true, false, "Not Completed",
// "No Homework"); incoming JSON still accepts those spellings but the value is
// normalised once at the boundary.
type HomeworkStatus string

const (
	HomeworkDone         HomeworkStatus = "done"
	HomeworkNotDone      HomeworkStatus = "not_done"
	HomeworkNotCompleted HomeworkStatus = "not_completed"
	HomeworkNone         HomeworkStatus = "no_homework"
)

// Valid reports whether the status is one of the four known states.
func (s HomeworkStatus) Valid() bool {
	switch s {
	case HomeworkDone, HomeworkNotDone, HomeworkNotCompleted, HomeworkNone:
		return true
	}
	return false
}

// UnmarshalJSON accepts canonical strings plus the legacy wire spellings.
func (s *HomeworkStatus) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*s = HomeworkDone
		} else {
			*s = HomeworkNotDone
		}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid homework status: %s", data)
	}
	switch raw {
	case string(HomeworkDone), string(HomeworkNotDone), string(HomeworkNotCompleted), string(HomeworkNone):
		*s = HomeworkStatus(raw)
	case "Not Completed":
		*s = HomeworkNotCompleted
	case "No Homework":
		*s = HomeworkNone
	default:
		return fmt.Errorf("unknown homework status %q", raw)
	}
	return nil
}

// Student represents one learner. Score is nullable: a student with no score
// is excluded from every ranking partition.
type Student struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Grade      *string   `db:"grade" json:"grade,omitempty"`
	MainCenter *string   `db:"main_center" json:"main_center,omitempty"`
	Score      *int      `db:"score" json:"score"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// GradeGroup returns the grade ranking partition for the student.
func (s Student) GradeGroup() string {
	if s.Grade == nil || *s.Grade == "" {
		return UnknownGroup
	}
	return *s.Grade
}

// CenterGroup returns the center ranking partition for the student.
func (s Student) CenterGroup() string {
	if s.MainCenter == nil || *s.MainCenter == "" {
		return UnknownGroup
	}
	return *s.MainCenter
}

// WeekRecord is one week's engagement snapshot for a student. At most one
// record exists per (student, week); writes are upserts keyed on the pair.
type WeekRecord struct {
	ID                string         `db:"id" json:"id"`
	StudentID         int64          `db:"student_id" json:"student_id"`
	Week              int            `db:"week" json:"week"`
	Attended          bool           `db:"attended" json:"attended"`
	HomeworkDone      HomeworkStatus `db:"hw_done" json:"hw_done"`
	ViewHomeworkVideo bool           `db:"view_homework_video" json:"view_homework_video"`
	QuizDegree        *string        `db:"quiz_degree" json:"quiz_degree,omitempty"`
	Comment           *string        `db:"comment" json:"comment,omitempty"`
	MessageState      bool           `db:"message_state" json:"message_state"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for listing students.
type StudentFilter struct {
	Grade      string
	MainCenter string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// StudentRanking is the computed rank of one student within its center and
// grade partitions. Nil values mean the student has no score and is outside
// the rankable set.
type StudentRanking struct {
	CenterRank  *int   `json:"center_rank"`
	CenterTotal *int   `json:"center_total"`
	GradeRank   *int   `json:"grade_rank"`
	GradeTotal  *int   `json:"grade_total"`
	MainCenter  string `json:"main_center"`
	Grade       string `json:"grade"`
}

// RankedStudent annotates a student row with its computed rankings for the
// staff score table.
type RankedStudent struct {
	Student
	StudentRanking
}
