package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assignmentFixture struct {
	repo     *memSlots
	people   memPeople
	channel  *recordingChannel
	operator *recordingOperator
	svc      *AssignmentService
}

func newAssignmentFixture() *assignmentFixture {
	f := &assignmentFixture{
		repo: newMemSlots(),
		people: memPeople{
			1: {ID: 1, Name: "Alice", Phone: "(555) 123-4567", Email: "alice@example.org"},
			2: {ID: 2, Name: "Bob", Phone: "+1 555 987 6543"},
		},
		channel:  &recordingChannel{},
		operator: &recordingOperator{},
	}
	now := clock.Fixed(time.Date(2026, 10, 15, 9, 0, 0, 0, testLoc))
	f.svc = NewAssignmentService(f.repo, f.people, f.channel, f.operator, now, "Jumuah", testLogger())
	return f
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	return ve.Message
}

func TestOptIn_ConfirmsOpenSlot(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	got, err := f.svc.OptIn(context.Background(), id, 1, "  Patience  ")
	require.NoError(t, err)
	assert.Equal(t, slot.StatusConfirmed, got.Status)
	assert.Equal(t, "Patience", got.Topic)

	stored := f.repo.get(t, id)
	assert.Equal(t, slot.StatusConfirmed, stored.Status)
	assert.Equal(t, int64(1), stored.AssigneeID.Int64)
	assert.Equal(t, "Patience", stored.Topic)
	assert.False(t, stored.Reminder24Sent)
	assert.False(t, stored.Reminder6Sent)

	speakerMsgs := f.channel.messages()
	require.Len(t, speakerMsgs, 1)
	assert.Equal(t, "Jumuah commitment confirmed", speakerMsgs[0].Subject)
	assert.Contains(t, speakerMsgs[0].Body, "2026-10-16 at 14:00")

	opMsgs := f.operator.messages()
	require.Len(t, opMsgs, 1)
	assert.Contains(t, opMsgs[0].Body, "Speaker Alice (phone: (555) 123-4567, email: alice@example.org) has opted in")
}

func TestOptIn_EmptyTopicKeepsExisting(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", Topic: "Charity"})

	_, err := f.svc.OptIn(context.Background(), id, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "Charity", f.repo.get(t, id).Topic)
}

func TestOptIn_AlreadyConfirmed(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(2)})

	_, err := f.svc.OptIn(context.Background(), id, 1, "")
	require.ErrorIs(t, err, slot.ErrAlreadyConfirmed)
	assert.Equal(t, "This slot is already confirmed.", UserMessage(err))
	assert.Equal(t, int64(2), f.repo.get(t, id).AssigneeID.Int64)
	assert.Empty(t, f.channel.messages())
}

func TestOptIn_ConcurrentRaceHasOneWinner(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newAssignmentFixture()
		id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		for j, personID := range []int64{1, 2} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, errs[j] = f.svc.OptIn(context.Background(), id, personID, "")
			}()
		}
		close(start)
		wg.Wait()

		var wins, conflicts int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, slot.ErrAlreadyConfirmed):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		require.Equal(t, 1, wins)
		require.Equal(t, 1, conflicts)
		require.Len(t, f.channel.messages(), 1)
	}
}

func TestOptIn_TopicTooLong(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	_, err := f.svc.OptIn(context.Background(), id, 1, strings.Repeat("a", 256))
	assert.Equal(t, "Topic must be at most 255 characters.", validationMessage(t, err))
	assert.False(t, f.repo.get(t, id).IsAssigned())
}

func TestOptIn_UnknownSlot(t *testing.T) {
	f := newAssignmentFixture()
	_, err := f.svc.OptIn(context.Background(), 404, 1, "")
	require.ErrorIs(t, err, slot.ErrSlotNotFound)
	assert.Equal(t, "Slot not found.", UserMessage(err))
}

func TestCancel_BySpeakerResetsFlags(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{
		Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1),
		Reminder24Sent: true, Reminder6Sent: true,
	})

	require.NoError(t, f.svc.Cancel(context.Background(), id, 1, false))

	stored := f.repo.get(t, id)
	assert.Equal(t, slot.StatusOpen, stored.Status)
	assert.False(t, stored.IsAssigned())
	assert.False(t, stored.Reminder24Sent)
	assert.False(t, stored.Reminder6Sent)

	require.Len(t, f.channel.messages(), 1)
	assert.Equal(t, "Jumuah commitment cancelled", f.channel.messages()[0].Subject)
	require.Len(t, f.operator.messages(), 1)
}

func TestCancel_ByOtherSpeakerIsRejected(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1)})

	err := f.svc.Cancel(context.Background(), id, 2, false)
	assert.Equal(t, "You cannot cancel this commitment.", validationMessage(t, err))
	assert.True(t, f.repo.get(t, id).IsAssigned())
}

func TestCancel_ByAdmin(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1)})

	require.NoError(t, f.svc.Cancel(context.Background(), id, 99, true))
	assert.False(t, f.repo.get(t, id).IsAssigned())
}

func TestCancel_OpenSlotIsRejected(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	err := f.svc.Cancel(context.Background(), id, 1, true)
	assert.Equal(t, "You cannot cancel this commitment.", validationMessage(t, err))
}

func TestAdminAssign_ReassignResetsFlags(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{
		Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1), Reminder24Sent: true,
	})

	bob := int64(2)
	require.NoError(t, f.svc.AdminAssign(context.Background(), id, &bob))

	stored := f.repo.get(t, id)
	assert.Equal(t, int64(2), stored.AssigneeID.Int64)
	assert.Equal(t, slot.StatusConfirmed, stored.Status)
	assert.False(t, stored.Reminder24Sent)

	require.NoError(t, f.svc.AdminAssign(context.Background(), id, nil))
	stored = f.repo.get(t, id)
	assert.Equal(t, slot.StatusOpen, stored.Status)
	assert.False(t, stored.IsAssigned())
}

func TestAdminAssign_UnknownPerson(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	ghost := int64(404)
	err := f.svc.AdminAssign(context.Background(), id, &ghost)
	require.ErrorIs(t, err, person.ErrPersonNotFound)
	assert.False(t, f.repo.get(t, id).IsAssigned())
}

func TestAssignByPhone(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		wantID int64
	}{
		{"dotted national", "555.123.4567", 1},
		{"e164", "+15551234567", 1},
		{"stored with spaces", "(555) 987-6543", 2},
		{"country code without plus", "1 555 987 6543", 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAssignmentFixture()
			id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

			p, err := f.svc.AssignByPhone(context.Background(), id, tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, p.ID)
			assert.Equal(t, tc.wantID, f.repo.get(t, id).AssigneeID.Int64)
		})
	}
}

func TestAssignByPhone_Invalid(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	_, err := f.svc.AssignByPhone(context.Background(), id, "   ")
	assert.Equal(t, "Please provide a phone number.", validationMessage(t, err))

	_, err = f.svc.AssignByPhone(context.Background(), id, "555-000-0000")
	assert.Equal(t, "No speaker found with phone +15550000000.", validationMessage(t, err))
	assert.False(t, f.repo.get(t, id).IsAssigned())
}

func TestOptInByPhone(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", Reminder24Sent: true})

	got, speaker, err := f.svc.OptInByPhone(context.Background(), id, "555.987.6543", "Charity")
	require.NoError(t, err)
	assert.Equal(t, int64(2), speaker.ID)
	assert.Equal(t, "Charity", got.Topic)

	stored := f.repo.get(t, id)
	assert.Equal(t, slot.StatusConfirmed, stored.Status)
	assert.Equal(t, int64(2), stored.AssigneeID.Int64)
	assert.False(t, stored.Reminder24Sent)
	assert.Len(t, f.channel.messages(), 1)
	assert.Len(t, f.operator.messages(), 1)

	// Unlike AssignByPhone, a confirmed slot is not taken over.
	_, _, err = f.svc.OptInByPhone(context.Background(), id, "(555) 123-4567", "")
	require.ErrorIs(t, err, slot.ErrAlreadyConfirmed)
	assert.Equal(t, int64(2), f.repo.get(t, id).AssigneeID.Int64)

	_, _, err = f.svc.OptInByPhone(context.Background(), id, "", "")
	assert.Equal(t, "Please provide a phone number.", validationMessage(t, err))
}

func TestUpdateTopic_Permissions(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1)})

	require.NoError(t, f.svc.UpdateTopic(context.Background(), id, 1, false, "Patience"))
	assert.Equal(t, "Patience", f.repo.get(t, id).Topic)

	err := f.svc.UpdateTopic(context.Background(), id, 2, false, "Hijack")
	assert.Equal(t, "You cannot edit the topic for this slot.", validationMessage(t, err))

	require.NoError(t, f.svc.UpdateTopic(context.Background(), id, 99, true, "Charity"))
	assert.Equal(t, "Charity", f.repo.get(t, id).Topic)
}

func TestCreateSlot(t *testing.T) {
	f := newAssignmentFixture()

	s, err := f.svc.CreateSlot(context.Background(), "2026-12-24", "18:30", "Special session", "Hall B")
	require.NoError(t, err)
	assert.NotZero(t, s.ID)
	assert.Equal(t, slot.StatusOpen, s.Status)
	assert.Equal(t, day(2026, 12, 24), s.Date)

	_, err = f.svc.CreateSlot(context.Background(), "2026-12-24", "18:30", "", "")
	assert.Equal(t, "A slot on 2026-12-24 at 18:30 already exists.", validationMessage(t, err))

	_, err = f.svc.CreateSlot(context.Background(), "24/12/2026", "18:30", "", "")
	assert.Equal(t, "Date must look like 2026-10-16.", validationMessage(t, err))

	_, err = f.svc.CreateSlot(context.Background(), "2026-12-24", "6:30pm", "", "")
	assert.Equal(t, "Time must look like 14:00.", validationMessage(t, err))
}

func TestEditSlot_ResetsRemindersKeepsSpeaker(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{
		Date: day(2026, 10, 16), Time: "14:00", AssigneeID: assigned(1),
		Reminder24Sent: true, Reminder6Sent: true,
	})

	require.NoError(t, f.svc.EditSlot(context.Background(), id, "2026-10-16", "15:00", ptr("Moved"), nil))

	stored := f.repo.get(t, id)
	assert.Equal(t, "15:00", stored.Time)
	assert.Equal(t, "Moved", stored.Topic)
	assert.Equal(t, int64(1), stored.AssigneeID.Int64)
	assert.False(t, stored.Reminder24Sent)
	assert.False(t, stored.Reminder6Sent)
}

func TestEditSlot_NilKeepsTopicAndNotes(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00", Topic: "Patience", Notes: "Hall B"})

	require.NoError(t, f.svc.EditSlot(context.Background(), id, "2026-10-23", "14:00", nil, nil))
	stored := f.repo.get(t, id)
	assert.Equal(t, day(2026, 10, 23), stored.Date)
	assert.Equal(t, "Patience", stored.Topic)
	assert.Equal(t, "Hall B", stored.Notes)

	require.NoError(t, f.svc.EditSlot(context.Background(), id, "2026-10-23", "14:00", ptr(""), ptr(" Hall C ")))
	stored = f.repo.get(t, id)
	assert.Empty(t, stored.Topic)
	assert.Equal(t, "Hall C", stored.Notes)

	err := f.svc.EditSlot(context.Background(), id, "2026-10-23", "14:00", ptr(strings.Repeat("a", 256)), nil)
	assert.Equal(t, "Topic must be at most 255 characters.", validationMessage(t, err))
}

func TestEditSlot_CollisionIsRejected(t *testing.T) {
	f := newAssignmentFixture()
	f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:45"})

	err := f.svc.EditSlot(context.Background(), id, "2026-10-16", "14:00", nil, nil)
	assert.Equal(t, "A slot on 2026-10-16 at 14:00 already exists.", validationMessage(t, err))
	assert.Equal(t, "14:45", f.repo.get(t, id).Time)
}

func TestDeleteSlot(t *testing.T) {
	f := newAssignmentFixture()
	id := f.repo.seed(t, &slot.Slot{Date: day(2026, 10, 16), Time: "14:00"})

	require.NoError(t, f.svc.DeleteSlot(context.Background(), id))
	require.ErrorIs(t, f.svc.DeleteSlot(context.Background(), id), slot.ErrSlotNotFound)
}

func TestUserMessage_Unknown(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Something went wrong. Please try again later.", UserMessage(errors.New("boom")))
}

func ptr(s string) *string { return &s }
