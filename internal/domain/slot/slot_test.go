package slot

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	d := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-16|14:00", Key(d, "14:00"))
}

func TestSent(t *testing.T) {
	s := &Slot{AssigneeID: sql.NullInt64{Int64: 1, Valid: true}, Reminder24Sent: true}

	assert.True(t, s.IsAssigned())
	assert.True(t, s.Sent(ReminderDayBefore))
	assert.False(t, s.Sent(ReminderDayOf))
	assert.False(t, s.Sent(ReminderKind("weekly")))
}
