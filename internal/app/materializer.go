// internal/app/materializer.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/slot"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"
)

// Recurrence describes the fixed weekly pattern: one weekday, several times of day.
type Recurrence struct {
	Weekday time.Weekday
	Times   []string // HH:MM, in insertion order
}

// Materializer keeps the rolling window of future slots populated. It only
// inserts; existing slots are never mutated or deleted.
type Materializer struct {
	slots      slot.Repository
	clock      clock.Clock
	recurrence Recurrence
	logger     *logrus.Entry
}

func NewMaterializer(sr slot.Repository, c clock.Clock, rec Recurrence, logger *logrus.Entry) *Materializer {
	return &Materializer{
		slots:      sr,
		clock:      c,
		recurrence: rec,
		logger:     logger,
	}
}

// EnsureUpcomingSlots inserts every missing (date, time) pair for the target
// weekday in [today, today+horizonWeeks*7 days]. It is safe to call repeatedly:
// anything already present is skipped, and a concurrent insert of the same pair
// is reported by the store as a duplicate and treated as present.
// Returns the number of slots inserted by this call.
func (m *Materializer) EnsureUpcomingSlots(ctx context.Context, horizonWeeks int) (int, error) {
	if horizonWeeks <= 0 {
		return 0, nil
	}

	today := clock.Today(m.clock.Now())
	end := today.AddDate(0, 0, horizonWeeks*7)

	existing, err := m.slots.List(ctx, slot.Filter{From: today})
	if err != nil {
		return 0, fmt.Errorf("list existing slots: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, s := range existing {
		present[slot.Key(s.Date, s.Time)] = true
	}

	inserted := 0
	for _, date := range m.occurrences(today, end) {
		for _, hhmm := range m.recurrence.Times {
			if present[slot.Key(date, hhmm)] {
				continue
			}

			newSlot := &slot.Slot{
				Date:   date,
				Time:   hhmm,
				Status: slot.StatusOpen,
			}
			if _, err := m.slots.Insert(ctx, newSlot); err != nil {
				if errors.Is(err, slot.ErrDuplicateSlot) {
					m.logger.WithField("slot", slot.Key(date, hhmm)).Debug("Slot created concurrently, skipping")
					present[slot.Key(date, hhmm)] = true
					continue
				}
				// Earlier inserts stay; the next call picks up where this one stopped.
				return inserted, fmt.Errorf("insert slot %s: %w", slot.Key(date, hhmm), err)
			}
			present[slot.Key(date, hhmm)] = true
			inserted++
		}
	}

	m.logger.WithFields(logrus.Fields{
		"inserted":      inserted,
		"horizon_weeks": horizonWeeks,
		"until":         clock.FormatISODate(end),
	}).Info("Upcoming slots ensured")
	return inserted, nil
}

// occurrences lists the target-weekday dates in [from, to], both at local midnight.
func (m *Materializer) occurrences(from, to time.Time) []time.Time {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{toRRuleWeekday(m.recurrence.Weekday)},
		Dtstart:   from,
	})
	if err != nil {
		// The option set is fixed; a failure here is a programming error.
		panic(fmt.Sprintf("materializer: invalid recurrence rule: %v", err))
	}

	dates := rule.Between(from, to, true)
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		d = d.In(from.Location())
		if clock.DayOfWeek(d) != int(m.recurrence.Weekday) {
			continue
		}
		out = append(out, clock.Today(d))
	}
	return out
}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
