package models

import (
	"database/sql"
	"time"
)

// DateLayout is how class dates travel to and from the database.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusPresent  Status = "present"
	StatusAbsent   Status = "absent"
	StatusUnmarked Status = "unmarked"
)

// StatusFromMark derives the status of a left-joined mark.
// A NULL mark means no row exists for that day, which is not the same as absent.
func StatusFromMark(present sql.NullBool) Status {
	switch {
	case !present.Valid:
		return StatusUnmarked
	case present.Bool:
		return StatusPresent
	default:
		return StatusAbsent
	}
}

func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusAbsent:
		return "Absent"
	default:
		return "Unmarked"
	}
}

// Toggled is the status a single tap moves to: anything but present becomes present.
func (s Status) Toggled() Status {
	if s == StatusPresent {
		return StatusAbsent
	}
	return StatusPresent
}

// MarkStatus derives the status of a stored mark; a nil mark is unmarked.
func MarkStatus(mark *AttendanceMark) Status {
	if mark == nil {
		return StatusFromMark(sql.NullBool{})
	}
	return StatusFromMark(sql.NullBool{Bool: mark.Present, Valid: true})
}

type AttendanceMark struct {
	StudentID int64     `db:"student_id" json:"student_id"`
	ClassDate time.Time `db:"class_date" json:"class_date"`
	Present   bool      `db:"present" json:"present"`
}

type RosterEntry struct {
	Student Student `json:"student"`
	Status  Status  `json:"status"`
}

// Day truncates t to its calendar date in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
