// internal/domain/slot/slot.go
package slot

import (
	"database/sql"
	"time"
)

// Status mirrors whether a speaker is assigned. It is stored explicitly and
// always written together with AssigneeID.
type Status string

const (
	StatusOpen      Status = "open"
	StatusConfirmed Status = "confirmed"
)

// Slot is one schedulable occurrence (date + time) of the weekly event.
// Corresponds to the 'slots' table.
type Slot struct {
	ID             int64
	Date           time.Time // local midnight
	Time           string    // HH:MM
	Topic          string
	Notes          string
	Status         Status
	AssigneeID     sql.NullInt64
	Reminder24Sent bool
	Reminder6Sent  bool
	CreatedAt      time.Time
}

// IsAssigned reports whether a speaker holds the slot.
func (s *Slot) IsAssigned() bool {
	return s.AssigneeID.Valid
}

// Key identifies a slot by its (date, time) pair, e.g. "2026-10-16|14:00".
func Key(date time.Time, hhmm string) string {
	return date.Format("2006-01-02") + "|" + hhmm
}

// ReminderKind names a reminder threshold. Each kind owns one flag column.
type ReminderKind string

const (
	ReminderDayBefore ReminderKind = "day_before"
	ReminderDayOf     ReminderKind = "day_of"
)

// Sent reports whether the flag for kind is already set on s.
func (s *Slot) Sent(kind ReminderKind) bool {
	switch kind {
	case ReminderDayBefore:
		return s.Reminder24Sent
	case ReminderDayOf:
		return s.Reminder6Sent
	default:
		return false
	}
}
