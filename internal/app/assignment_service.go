// internal/app/assignment_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/notify"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"
	"speaker_scheduler/internal/phone"

	"github.com/sirupsen/logrus"
)

const maxTopicLength = 255

// ValidationError is malformed input to a user-facing action. Message is safe
// to show to the user; no state was changed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage maps service errors to text suitable for the person who
// triggered the action. Unknown errors get a generic message.
func UserMessage(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, slot.ErrAlreadyConfirmed):
		return "This slot is already confirmed."
	case errors.Is(err, slot.ErrSlotNotFound):
		return "Slot not found."
	case errors.Is(err, slot.ErrNotAssigned):
		return "This slot has no speaker assigned."
	case errors.Is(err, person.ErrPersonNotFound):
		return "Speaker not found."
	default:
		return "Something went wrong. Please try again later."
	}
}

// AssignmentService holds every action that changes who speaks when.
type AssignmentService struct {
	slots     slot.Repository
	people    person.Directory
	channel   notify.Channel
	operator  notify.Operator
	clock     clock.Clock
	eventName string
	logger    *logrus.Entry
}

func NewAssignmentService(
	sr slot.Repository,
	people person.Directory,
	ch notify.Channel,
	op notify.Operator,
	c clock.Clock,
	eventName string,
	logger *logrus.Entry,
) *AssignmentService {
	return &AssignmentService{
		slots:     sr,
		people:    people,
		channel:   ch,
		operator:  op,
		clock:     c,
		eventName: eventName,
		logger:    logger,
	}
}

// OptIn confirms an open slot for a speaker. If two speakers race for the same
// slot exactly one wins; the other gets slot.ErrAlreadyConfirmed.
func (s *AssignmentService) OptIn(ctx context.Context, slotID, personID int64, topicInput string) (*slot.Slot, error) {
	topic, err := cleanTopic(topicInput)
	if err != nil {
		return nil, err
	}

	target, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if target.IsAssigned() {
		return nil, slot.ErrAlreadyConfirmed
	}

	speaker, err := s.people.FindByID(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("load speaker %d: %w", personID, err)
	}

	var topicArg *string
	if topic != "" {
		topicArg = &topic
	}
	if err := s.slots.Assign(ctx, slotID, personID, topicArg); err != nil {
		return nil, err
	}

	target.AssigneeID.Int64, target.AssigneeID.Valid = personID, true
	target.Status = slot.StatusConfirmed
	target.Reminder24Sent, target.Reminder6Sent = false, false
	if topic != "" {
		target.Topic = topic
	}

	s.logger.WithFields(logrus.Fields{"slot_id": slotID, "person_id": personID}).Info("Speaker opted in")

	when := describeSlot(target)
	s.notifySpeaker(ctx, speaker, fmt.Sprintf("%s commitment confirmed", s.eventName),
		fmt.Sprintf("You have been scheduled for %s on %s. Topic: %s.", s.eventName, when, orDefault(target.Topic, "TBD")))
	s.notifyOperator(ctx, fmt.Sprintf("%s slot confirmed", s.eventName),
		fmt.Sprintf("Speaker %s (phone: %s, email: %s) has opted in for %s on %s. Topic: %s",
			speaker.Name, orDefault(speaker.Phone, "N/A"), orDefault(speaker.Email, "N/A"),
			s.eventName, when, orDefault(target.Topic, "N/A")))
	return target, nil
}

// Cancel reopens a slot. Only its speaker or an admin may cancel.
func (s *AssignmentService) Cancel(ctx context.Context, slotID, actorID int64, isAdmin bool) error {
	target, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if !target.IsAssigned() || (target.AssigneeID.Int64 != actorID && !isAdmin) {
		return invalid("You cannot cancel this commitment.")
	}
	previousID := target.AssigneeID.Int64

	if err := s.slots.Clear(ctx, slotID); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"slot_id": slotID, "person_id": previousID, "actor_id": actorID}).Info("Commitment cancelled")

	when := describeSlot(target)
	speaker, err := s.people.FindByID(ctx, previousID)
	if err != nil {
		s.logger.WithError(err).WithField("person_id", previousID).Warn("Could not load cancelled speaker for notification")
		speaker = &person.Person{ID: previousID, Name: fmt.Sprintf("speaker #%d", previousID)}
	} else {
		s.notifySpeaker(ctx, speaker, fmt.Sprintf("%s commitment cancelled", s.eventName),
			fmt.Sprintf("Your %s commitment on %s has been cancelled.", s.eventName, when))
	}
	s.notifyOperator(ctx, fmt.Sprintf("%s commitment cancelled", s.eventName),
		fmt.Sprintf("Speaker %s (phone: %s, email: %s) has cancelled their %s commitment on %s. Topic: %s",
			speaker.Name, orDefault(speaker.Phone, "N/A"), orDefault(speaker.Email, "N/A"),
			s.eventName, when, orDefault(target.Topic, "N/A")))
	return nil
}

// AdminAssign sets or clears the speaker without the open-slot precondition.
// Any change of speaker resets both reminder flags.
func (s *AssignmentService) AdminAssign(ctx context.Context, slotID int64, personID *int64) error {
	if personID != nil {
		if _, err := s.people.FindByID(ctx, *personID); err != nil {
			return err
		}
	}
	if err := s.slots.Reassign(ctx, slotID, personID); err != nil {
		return err
	}
	fields := logrus.Fields{"slot_id": slotID}
	if personID != nil {
		fields["person_id"] = *personID
	}
	s.logger.WithFields(fields).Info("Slot assignment set by admin")
	return nil
}

// AssignByPhone resolves a speaker from free-form phone input and assigns them.
func (s *AssignmentService) AssignByPhone(ctx context.Context, slotID int64, phoneInput string) (*person.Person, error) {
	speaker, err := s.resolveByPhone(ctx, phoneInput)
	if err != nil {
		return nil, err
	}
	if err := s.AdminAssign(ctx, slotID, &speaker.ID); err != nil {
		return nil, err
	}
	return speaker, nil
}

// OptInByPhone is OptIn for a speaker identified by phone, used when the
// operator relays a volunteer's sign-up.
func (s *AssignmentService) OptInByPhone(ctx context.Context, slotID int64, phoneInput, topicInput string) (*slot.Slot, *person.Person, error) {
	speaker, err := s.resolveByPhone(ctx, phoneInput)
	if err != nil {
		return nil, nil, err
	}
	confirmed, err := s.OptIn(ctx, slotID, speaker.ID, topicInput)
	if err != nil {
		return nil, nil, err
	}
	return confirmed, speaker, nil
}

func (s *AssignmentService) resolveByPhone(ctx context.Context, phoneInput string) (*person.Person, error) {
	normalized := phone.Normalize(phoneInput)
	if normalized == "" {
		return nil, invalid("Please provide a phone number.")
	}
	speaker, err := s.people.FindByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, person.ErrPersonNotFound) {
			return nil, invalid("No speaker found with phone %s.", normalized)
		}
		return nil, err
	}
	return speaker, nil
}

// UpdateTopic changes the topic of a slot. Only its speaker or an admin may do it.
func (s *AssignmentService) UpdateTopic(ctx context.Context, slotID, actorID int64, isAdmin bool, topicInput string) error {
	topic, err := cleanTopic(topicInput)
	if err != nil {
		return err
	}
	target, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	if !isAdmin && (!target.IsAssigned() || target.AssigneeID.Int64 != actorID) {
		return invalid("You cannot edit the topic for this slot.")
	}
	return s.slots.UpdateTopic(ctx, slotID, topic)
}

// CreateSlot adds a one-off slot.
func (s *AssignmentService) CreateSlot(ctx context.Context, dateInput, timeInput, topic, notes string) (*slot.Slot, error) {
	date, hhmm, err := s.parseDateTime(dateInput, timeInput)
	if err != nil {
		return nil, err
	}
	cleaned, err := cleanTopic(topic)
	if err != nil {
		return nil, err
	}

	newSlot := &slot.Slot{
		Date:   date,
		Time:   hhmm,
		Topic:  cleaned,
		Notes:  strings.TrimSpace(notes),
		Status: slot.StatusOpen,
	}
	if _, err := s.slots.Insert(ctx, newSlot); err != nil {
		if errors.Is(err, slot.ErrDuplicateSlot) {
			return nil, invalid("A slot on %s at %s already exists.", clock.FormatISODate(date), hhmm)
		}
		return nil, err
	}
	return newSlot, nil
}

// EditSlot moves a slot to a new date and time. A nil topic or notes keeps
// the current value. The speaker is kept, but reminders must be earned again
// for the new time.
func (s *AssignmentService) EditSlot(ctx context.Context, slotID int64, dateInput, timeInput string, topic, notes *string) error {
	date, hhmm, err := s.parseDateTime(dateInput, timeInput)
	if err != nil {
		return err
	}

	target, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return err
	}
	target.Date, target.Time = date, hhmm
	if topic != nil {
		if target.Topic, err = cleanTopic(*topic); err != nil {
			return err
		}
	}
	if notes != nil {
		target.Notes = strings.TrimSpace(*notes)
	}
	if err := s.slots.UpdateSchedule(ctx, target); err != nil {
		if errors.Is(err, slot.ErrDuplicateSlot) {
			return invalid("A slot on %s at %s already exists.", clock.FormatISODate(date), hhmm)
		}
		return err
	}
	s.logger.WithFields(logrus.Fields{"slot_id": slotID, "date": clock.FormatISODate(date), "time": hhmm}).Info("Slot rescheduled")
	return nil
}

func (s *AssignmentService) DeleteSlot(ctx context.Context, slotID int64) error {
	if err := s.slots.Delete(ctx, slotID); err != nil {
		return err
	}
	s.logger.WithField("slot_id", slotID).Info("Slot deleted")
	return nil
}

func (s *AssignmentService) parseDateTime(dateInput, timeInput string) (date time.Time, hhmm string, err error) {
	date, err = clock.ParseISODate(dateInput, s.clock.Now().Location())
	if err != nil {
		return date, "", invalid("Date must look like 2026-10-16.")
	}
	hhmm = strings.TrimSpace(timeInput)
	if _, _, err := clock.ParseTimeOfDay(hhmm); err != nil {
		return date, "", invalid("Time must look like 14:00.")
	}
	return date, hhmm, nil
}

func (s *AssignmentService) notifySpeaker(ctx context.Context, p *person.Person, subject, body string) {
	if err := s.channel.Send(ctx, p, subject, body); err != nil {
		s.logger.WithError(err).WithField("person_id", p.ID).Error("Failed to notify speaker")
	}
}

func (s *AssignmentService) notifyOperator(ctx context.Context, subject, body string) {
	if err := s.operator.NotifyOperator(ctx, subject, body); err != nil {
		s.logger.WithError(err).Error("Failed to notify operator")
	}
}

func cleanTopic(input string) (string, error) {
	topic := strings.TrimSpace(input)
	if utf8.RuneCountInString(topic) > maxTopicLength {
		return "", invalid("Topic must be at most %d characters.", maxTopicLength)
	}
	return topic, nil
}

func describeSlot(s *slot.Slot) string {
	return fmt.Sprintf("%s at %s", clock.FormatISODate(s.Date), s.Time)
}
