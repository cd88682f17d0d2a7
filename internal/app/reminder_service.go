// internal/app/reminder_service.go
package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/notify"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"

	"github.com/sirupsen/logrus"
)

// Threshold is a reminder that fires once per commitment when the time left
// until the event falls in (Lead-Window, Lead].
type Threshold struct {
	Kind   slot.ReminderKind
	Lead   time.Duration
	Window time.Duration
}

// Due reports whether delta (event instant minus now) is inside the window.
func (t Threshold) Due(delta time.Duration) bool {
	return delta <= t.Lead && delta > t.Lead-t.Window
}

// DefaultThresholds returns the day-before (24h) and day-of (6h) reminders.
// window must be at least the scan interval, or slots can slip through unobserved.
func DefaultThresholds(window time.Duration) []Threshold {
	return []Threshold{
		{Kind: slot.ReminderDayBefore, Lead: 24 * time.Hour, Window: window},
		{Kind: slot.ReminderDayOf, Lead: 6 * time.Hour, Window: window},
	}
}

// ValidateThresholds rejects windows that would fire at or after the event
// (Window >= Lead) or let two kinds fire for the same delta (overlapping windows).
func ValidateThresholds(ths []Threshold) error {
	sorted := slices.Clone(ths)
	slices.SortFunc(sorted, func(a, b Threshold) int { return cmp.Compare(a.Lead, b.Lead) })
	for i, th := range sorted {
		if th.Window <= 0 {
			return fmt.Errorf("reminder %s: window must be positive, got %s", th.Kind, th.Window)
		}
		if th.Window >= th.Lead {
			return fmt.Errorf("reminder %s: window %s must be shorter than its lead %s", th.Kind, th.Window, th.Lead)
		}
		if i > 0 && th.Lead-th.Window < sorted[i-1].Lead {
			return fmt.Errorf("reminder %s: window %s overlaps reminder %s", th.Kind, th.Window, sorted[i-1].Kind)
		}
	}
	return nil
}

// ScanResult summarises one reminder sweep.
type ScanResult struct {
	Scanned int
	Sent    int
	Failed  int
}

type ReminderService struct {
	slots      slot.Repository
	people     person.Directory
	channel    notify.Channel
	clock      clock.Clock
	thresholds []Threshold
	eventName  string
	logger     *logrus.Entry
}

func NewReminderService(
	sr slot.Repository,
	people person.Directory,
	ch notify.Channel,
	c clock.Clock,
	thresholds []Threshold,
	eventName string,
	logger *logrus.Entry,
) *ReminderService {
	return &ReminderService{
		slots:      sr,
		people:     people,
		channel:    ch,
		clock:      c,
		thresholds: thresholds,
		eventName:  eventName,
		logger:     logger,
	}
}

// ScanReminders sends every reminder whose window the current instant falls in.
// A reminder is sent before its flag is written, so a crash in between can
// repeat it on the next scan. Failures for one slot are logged and do not stop
// the sweep. Only the initial read returns an error.
func (s *ReminderService) ScanReminders(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	now := s.clock.Now()
	confirmed, err := s.slots.List(ctx, slot.Filter{
		From:         clock.Today(now),
		Status:       slot.StatusConfirmed,
		AssignedOnly: true,
	})
	if err != nil {
		return result, fmt.Errorf("list confirmed slots: %w", err)
	}

	for _, sl := range confirmed {
		if err := ctx.Err(); err != nil {
			s.logger.WithError(err).Warn("Reminder scan interrupted")
			return result, nil
		}
		result.Scanned++

		sent, failed := s.processSlot(ctx, sl, now)
		result.Sent += sent
		result.Failed += failed
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": result.Scanned,
		"sent":    result.Sent,
		"failed":  result.Failed,
	}).Info("Reminder scan finished")
	return result, nil
}

func (s *ReminderService) processSlot(ctx context.Context, sl *slot.Slot, now time.Time) (sent, failed int) {
	slotLogger := s.logger.WithFields(logrus.Fields{
		"slot_id": sl.ID,
		"slot":    slot.Key(sl.Date, sl.Time),
	})

	eventAt, err := clock.Combine(sl.Date, sl.Time)
	if err != nil {
		slotLogger.WithError(err).Error("Slot has an unparseable time, skipping")
		return 0, 1
	}
	delta := eventAt.Sub(now)

	var speaker *person.Person
	for _, th := range s.thresholds {
		if sl.Sent(th.Kind) || !th.Due(delta) {
			continue
		}
		thLogger := slotLogger.WithField("reminder", th.Kind)

		if speaker == nil {
			speaker, err = s.people.FindByID(ctx, sl.AssigneeID.Int64)
			if err != nil {
				thLogger.WithError(err).Error("Could not load assigned speaker")
				return sent, failed + 1
			}
		}

		subject, body := s.reminderMessage(th.Kind, sl, eventAt)
		if err := s.channel.Send(ctx, speaker, subject, body); err != nil {
			// No retry: the flag is still recorded below.
			thLogger.WithError(err).Error("Failed to deliver reminder")
			failed++
		} else {
			sent++
		}

		marked, err := s.slots.MarkReminderSent(ctx, sl.ID, sl.AssigneeID.Int64, th.Kind)
		switch {
		case err != nil:
			thLogger.WithError(err).Error("Failed to record reminder flag")
			failed++
		case !marked:
			thLogger.Warn("Slot changed hands during scan; flag left for the new commitment")
		default:
			thLogger.Info("Reminder recorded")
		}
	}
	return sent, failed
}

func (s *ReminderService) reminderMessage(kind slot.ReminderKind, sl *slot.Slot, eventAt time.Time) (string, string) {
	date := clock.FormatISODate(eventAt)
	switch kind {
	case slot.ReminderDayOf:
		return fmt.Sprintf("%s reminder: today", s.eventName),
			fmt.Sprintf("Reminder: You are scheduled for %s today (%s) at %s. Please arrive early.",
				s.eventName, date, sl.Time)
	default:
		return fmt.Sprintf("%s reminder: tomorrow", s.eventName),
			fmt.Sprintf("Reminder: You are scheduled for %s tomorrow (%s) at %s. Topic: %s.",
				s.eventName, date, sl.Time, orDefault(sl.Topic, "TBD"))
	}
}
