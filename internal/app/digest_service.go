// internal/app/digest_service.go
package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/notify"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"

	"github.com/sirupsen/logrus"
)

const (
	openPlaceholder  = "OPEN"
	topicPlaceholder = "TBD"
)

// DigestSettings shapes the coverage report.
type DigestSettings struct {
	EventName    string
	Weekday      time.Weekday
	HorizonDays  int // slots in [today, today+HorizonDays] are considered
	Groups       int // number of leading date groups reported; <= 0 reports every group
	HorizonWeeks int // materialization horizon used before reporting; 0 skips it
}

// DigestEntry is a slot paired with the display name of its speaker ("" when open).
type DigestEntry struct {
	Slot    *slot.Slot
	Speaker string
}

// Digest is a rendered coverage report.
type Digest struct {
	Subject string
	Body    string
	Groups  int // date groups included; 0 only for the "no coverage" notice
}

type DigestService struct {
	slots        slot.Repository
	people       person.Directory
	operator     notify.Operator
	materializer *Materializer
	clock        clock.Clock
	settings     DigestSettings
	logger       *logrus.Entry
}

func NewDigestService(
	sr slot.Repository,
	people person.Directory,
	op notify.Operator,
	m *Materializer,
	c clock.Clock,
	settings DigestSettings,
	logger *logrus.Entry,
) *DigestService {
	return &DigestService{
		slots:        sr,
		people:       people,
		operator:     op,
		materializer: m,
		clock:        c,
		settings:     settings,
		logger:       logger,
	}
}

// SendDigest builds the coverage report for the upcoming horizon and sends it
// to the operator.
func (s *DigestService) SendDigest(ctx context.Context) (*Digest, error) {
	if s.materializer != nil && s.settings.HorizonWeeks > 0 {
		if _, err := s.materializer.EnsureUpcomingSlots(ctx, s.settings.HorizonWeeks); err != nil {
			// Report on whatever already exists.
			s.logger.WithError(err).Warn("Could not materialize slots before digest")
		}
	}

	entries, err := s.Upcoming(ctx)
	if err != nil {
		return nil, err
	}

	digest := BuildDigest(s.settings, entries)
	if err := s.operator.NotifyOperator(ctx, digest.Subject, digest.Body); err != nil {
		return digest, fmt.Errorf("send coverage digest: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"slots":  len(entries),
		"groups": digest.Groups,
	}).Info("Coverage digest sent")
	return digest, nil
}

// Upcoming lists slots in [today, today+HorizonDays] with speaker names resolved.
func (s *DigestService) Upcoming(ctx context.Context) ([]DigestEntry, error) {
	today := clock.Today(s.clock.Now())
	upcoming, err := s.slots.List(ctx, slot.Filter{
		From: today,
		To:   today.AddDate(0, 0, s.settings.HorizonDays),
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming slots: %w", err)
	}

	entries := make([]DigestEntry, 0, len(upcoming))
	names := make(map[int64]string)
	for _, sl := range upcoming {
		entry := DigestEntry{Slot: sl}
		if sl.IsAssigned() {
			entry.Speaker = s.speakerName(ctx, sl.AssigneeID.Int64, names)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *DigestService) speakerName(ctx context.Context, id int64, cache map[int64]string) string {
	if name, ok := cache[id]; ok {
		return name
	}
	name := fmt.Sprintf("speaker #%d", id)
	p, err := s.people.FindByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("person_id", id).Warn("Could not resolve speaker name for digest")
	} else if strings.TrimSpace(p.Name) != "" {
		name = p.Name
	}
	cache[id] = name
	return name
}

// BuildDigest groups entries by calendar date in chronological order, keeps the
// first settings.Groups groups and lists each group's slots by time of day.
// A non-positive settings.Groups keeps every group in the horizon.
func BuildDigest(settings DigestSettings, entries []DigestEntry) *Digest {
	scope := "upcoming " + settings.Weekday.String() + "s"
	if settings.Groups > 0 {
		scope = fmt.Sprintf("next %d %ss", settings.Groups, settings.Weekday)
	}
	subject := fmt.Sprintf("%s coverage: %s", settings.EventName, scope)

	if len(entries) == 0 {
		return &Digest{
			Subject: subject,
			Body: fmt.Sprintf("No %s slots found in the next %d days.",
				settings.EventName, settings.HorizonDays),
		}
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b DigestEntry) int {
		if c := a.Slot.Date.Compare(b.Slot.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot.Time, b.Slot.Time)
	})

	type group struct {
		date  time.Time
		items []DigestEntry
	}
	var groups []*group
	for _, e := range sorted {
		if n := len(groups); n > 0 && clock.SameDay(groups[n-1].date, e.Slot.Date) {
			groups[n-1].items = append(groups[n-1].items, e)
			continue
		}
		groups = append(groups, &group{date: e.Slot.Date, items: []DigestEntry{e}})
	}
	if settings.Groups > 0 && len(groups) > settings.Groups {
		groups = groups[:settings.Groups]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Upcoming %s coverage (%s):\n", settings.EventName, scope)
	for _, g := range groups {
		fmt.Fprintf(&sb, "- %s:\n", clock.FormatLongDate(g.date))
		for _, item := range g.items {
			fmt.Fprintf(&sb, "  • %s - %s (Topic: %s)\n",
				clock.FormatClock(item.Slot.Time),
				orDefault(item.Speaker, openPlaceholder),
				orDefault(item.Slot.Topic, topicPlaceholder))
		}
	}

	return &Digest{
		Subject: subject,
		Body:    strings.TrimRight(sb.String(), "\n"),
		Groups:  len(groups),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
