package app

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"speaker_scheduler/internal/domain/notify"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"
	"speaker_scheduler/internal/phone"

	"github.com/sirupsen/logrus"
)

var testLoc = time.FixedZone("CT", -5*3600)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, testLoc)
}

// memSlots is an in-memory slot.Repository with the same conditional-write
// rules as the Postgres store.
type memSlots struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*slot.Slot

	insertErr func(s *slot.Slot) error // optional failure hook
}

var _ slot.Repository = (*memSlots)(nil)

func newMemSlots() *memSlots {
	return &memSlots{rows: make(map[int64]*slot.Slot)}
}

func clone(s *slot.Slot) *slot.Slot {
	c := *s
	return &c
}

// seed stores s, keeping its reminder flags, and returns its ID.
func (m *memSlots) seed(t *testing.T, s *slot.Slot) int64 {
	t.Helper()
	r24, r6 := s.Reminder24Sent, s.Reminder6Sent
	if _, err := m.Insert(context.Background(), s); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID].Reminder24Sent, m.rows[s.ID].Reminder6Sent = r24, r6
	s.Reminder24Sent, s.Reminder6Sent = r24, r6
	return s.ID
}

func (m *memSlots) get(t *testing.T, id int64) *slot.Slot {
	t.Helper()
	s, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get slot %d: %v", id, err)
	}
	return s
}

func (m *memSlots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memSlots) List(_ context.Context, f slot.Filter) ([]*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*slot.Slot
	for _, s := range m.rows {
		if !f.From.IsZero() && s.Date.Before(dateOnly(f.From)) {
			continue
		}
		if !f.To.IsZero() && s.Date.After(dateOnly(f.To)) {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.AssignedOnly && !s.AssigneeID.Valid {
			continue
		}
		out = append(out, clone(s))
	}
	slices.SortFunc(out, func(a, b *slot.Slot) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Time, b.Time)
	})
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, testLoc)
}

func (m *memSlots) GetByID(_ context.Context, id int64) (*slot.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return clone(s), nil
}

func (m *memSlots) Insert(_ context.Context, s *slot.Slot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		if err := m.insertErr(s); err != nil {
			return 0, err
		}
	}
	key := slot.Key(s.Date, s.Time)
	for _, existing := range m.rows {
		if slot.Key(existing.Date, existing.Time) == key {
			return 0, slot.ErrDuplicateSlot
		}
	}
	m.nextID++
	s.ID = m.nextID
	s.Status = slot.StatusOpen
	if s.AssigneeID.Valid {
		s.Status = slot.StatusConfirmed
	}
	s.Reminder24Sent, s.Reminder6Sent = false, false
	s.CreatedAt = time.Now()
	m.rows[s.ID] = clone(s)
	return s.ID, nil
}

func (m *memSlots) Assign(_ context.Context, id, personID int64, topic *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.AssigneeID.Valid {
		return slot.ErrAlreadyConfirmed
	}
	s.AssigneeID = sql.NullInt64{Int64: personID, Valid: true}
	s.Status = slot.StatusConfirmed
	s.Reminder24Sent, s.Reminder6Sent = false, false
	if topic != nil {
		s.Topic = *topic
	}
	return nil
}

func (m *memSlots) Clear(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if !s.AssigneeID.Valid {
		return slot.ErrNotAssigned
	}
	s.AssigneeID = sql.NullInt64{}
	s.Status = slot.StatusOpen
	s.Reminder24Sent, s.Reminder6Sent = false, false
	return nil
}

func (m *memSlots) Reassign(_ context.Context, id int64, personID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if personID == nil {
		s.AssigneeID = sql.NullInt64{}
		s.Status = slot.StatusOpen
	} else {
		s.AssigneeID = sql.NullInt64{Int64: *personID, Valid: true}
		s.Status = slot.StatusConfirmed
	}
	s.Reminder24Sent, s.Reminder6Sent = false, false
	return nil
}

func (m *memSlots) UpdateSchedule(_ context.Context, upd *slot.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[upd.ID]
	if !ok {
		return slot.ErrSlotNotFound
	}
	key := slot.Key(upd.Date, upd.Time)
	for id, other := range m.rows {
		if id != upd.ID && slot.Key(other.Date, other.Time) == key {
			return slot.ErrDuplicateSlot
		}
	}
	s.Date, s.Time, s.Topic, s.Notes = upd.Date, upd.Time, upd.Topic, upd.Notes
	s.Reminder24Sent, s.Reminder6Sent = false, false
	upd.Reminder24Sent, upd.Reminder6Sent = false, false
	return nil
}

func (m *memSlots) UpdateTopic(_ context.Context, id int64, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return slot.ErrSlotNotFound
	}
	s.Topic = topic
	return nil
}

func (m *memSlots) MarkReminderSent(_ context.Context, id, assigneeID int64, kind slot.ReminderKind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || !s.AssigneeID.Valid || s.AssigneeID.Int64 != assigneeID {
		return false, nil
	}
	switch kind {
	case slot.ReminderDayBefore:
		s.Reminder24Sent = true
	case slot.ReminderDayOf:
		s.Reminder6Sent = true
	default:
		return false, fmt.Errorf("unknown reminder kind %q", kind)
	}
	return true, nil
}

func (m *memSlots) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return slot.ErrSlotNotFound
	}
	delete(m.rows, id)
	return nil
}

type memPeople map[int64]*person.Person

func (p memPeople) FindByID(_ context.Context, id int64) (*person.Person, error) {
	if found, ok := p[id]; ok {
		c := *found
		return &c, nil
	}
	return nil, person.ErrPersonNotFound
}

func (p memPeople) FindByPhone(_ context.Context, normalized string) (*person.Person, error) {
	variants := phone.Variants(normalized)
	for _, id := range slices.Sorted(maps.Keys(p)) {
		stored := phone.DigitsOnly(p[id].Phone)
		if stored != "" && slices.Contains(variants, stored) {
			c := *p[id]
			return &c, nil
		}
	}
	return nil, person.ErrPersonNotFound
}

type sentMessage struct {
	To      int64
	Subject string
	Body    string
}

// recordingChannel records every Send; failFor makes sends to a person fail.
type recordingChannel struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]bool
}

var _ notify.Channel = (*recordingChannel)(nil)

func (c *recordingChannel) Send(_ context.Context, to *person.Person, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[to.ID] {
		return fmt.Errorf("sms to person %d: %w", to.ID, notify.ErrDelivery)
	}
	c.sent = append(c.sent, sentMessage{To: to.ID, Subject: subject, Body: body})
	return nil
}

func (c *recordingChannel) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

type recordingOperator struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

var _ notify.Operator = (*recordingOperator)(nil)

func (o *recordingOperator) NotifyOperator(_ context.Context, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentMessage{Subject: subject, Body: body})
	return o.err
}

func (o *recordingOperator) messages() []sentMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.sent)
}

func assigned(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}
