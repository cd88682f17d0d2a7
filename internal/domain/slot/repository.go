// internal/domain/slot/repository.go
package slot

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStore wraps every read/write failure against the slot store.
	ErrStore = errors.New("slot store failure")

	ErrSlotNotFound     = errors.New("slot not found")
	ErrAlreadyConfirmed = errors.New("slot is already confirmed")
	ErrNotAssigned      = errors.New("slot has no assigned speaker")
	ErrDuplicateSlot    = errors.New("slot with this date and time already exists")
)

// Filter narrows List. Zero values mean "no constraint". From and To are inclusive dates.
type Filter struct {
	From         time.Time
	To           time.Time
	Status       Status
	AssignedOnly bool
}

// Repository persists slots. Every change to the assignee goes through Assign,
// Clear or Reassign, which write assignee, status and both reminder flags in a
// single statement.
type Repository interface {
	List(ctx context.Context, f Filter) ([]*Slot, error) // ordered by date, time
	GetByID(ctx context.Context, id int64) (*Slot, error)

	// Insert stores a new slot and sets its ID and CreatedAt. Returns ErrDuplicateSlot
	// when a slot with the same (date, time) exists.
	Insert(ctx context.Context, s *Slot) (int64, error)

	// Assign confirms an open slot for personID. The write is conditioned on the
	// slot still being unassigned; otherwise ErrAlreadyConfirmed. A nil topic keeps
	// the current one.
	Assign(ctx context.Context, id, personID int64, topic *string) error
	// Clear reopens a confirmed slot. Returns ErrNotAssigned if it is already open.
	Clear(ctx context.Context, id int64) error
	// Reassign sets the assignee unconditionally; a nil personID reopens the slot.
	Reassign(ctx context.Context, id int64, personID *int64) error

	// UpdateSchedule edits date, time, topic and notes. A moved slot must re-earn its reminders,
	// so both flags are reset.
	UpdateSchedule(ctx context.Context, s *Slot) error
	UpdateTopic(ctx context.Context, id int64, topic string) error

	// MarkReminderSent sets the flag for kind only if the slot is still held by
	// assigneeID. Returns false when the commitment changed in the meantime.
	MarkReminderSent(ctx context.Context, id, assigneeID int64, kind ReminderKind) (bool, error)

	Delete(ctx context.Context, id int64) error
}
