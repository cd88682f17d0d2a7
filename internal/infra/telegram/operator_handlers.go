package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"speaker_scheduler/internal/app"
	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/domain/slot"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const commandTimeout = 30 * time.Second

// SlotMaterializer creates the recurring slots ahead of time.
type SlotMaterializer interface {
	EnsureUpcomingSlots(ctx context.Context, horizonWeeks int) (int, error)
}

// CoverageReporter builds and sends the coverage digest.
type CoverageReporter interface {
	SendDigest(ctx context.Context) (*app.Digest, error)
	Upcoming(ctx context.Context) ([]app.DigestEntry, error)
}

// SlotAdmin is the set of assignment and slot actions the operator may take.
type SlotAdmin interface {
	OptInByPhone(ctx context.Context, slotID int64, phoneInput, topic string) (*slot.Slot, *person.Person, error)
	AssignByPhone(ctx context.Context, slotID int64, phoneInput string) (*person.Person, error)
	AdminAssign(ctx context.Context, slotID int64, personID *int64) error
	Cancel(ctx context.Context, slotID, actorID int64, isAdmin bool) error
	UpdateTopic(ctx context.Context, slotID, actorID int64, isAdmin bool, topic string) error
	CreateSlot(ctx context.Context, dateInput, timeInput, topic, notes string) (*slot.Slot, error)
	EditSlot(ctx context.Context, slotID int64, dateInput, timeInput string, topic, notes *string) error
	DeleteSlot(ctx context.Context, slotID int64) error
}

// OperatorServices are the actions exposed through the console.
type OperatorServices struct {
	Materializer SlotMaterializer
	Digest       CoverageReporter
	Assignments  SlotAdmin
	HorizonWeeks int
}

const operatorHelp = "Operator commands:\n\n" +
	"/coverage - send the coverage digest now\n" +
	"/ensure - create any missing upcoming slots\n" +
	"/slots - list upcoming slots with their IDs\n" +
	"/optin <slotID> <phone> [topic] - sign a speaker up for an open slot\n" +
	"/assign <slotID> <phone> - assign the speaker with that phone, replacing anyone\n" +
	"/cancel <slotID> - cancel a commitment and notify the speaker\n" +
	"/clear <slotID> - reopen a slot without notifying anyone\n" +
	"/topic <slotID> <text> - set the topic\n" +
	"/create <date> <time> [topic] - add a one-off slot\n" +
	"/edit <slotID> <date> <time> [topic] - move a slot\n" +
	"/delete <slotID> - remove a slot\n" +
	"/help - show this message"

type operatorConsole struct {
	ctx    context.Context
	svc    OperatorServices
	logger *logrus.Entry
}

// RegisterOperatorHandlers wires the operator console. Every command is
// restricted to operatorID; other senders get a refusal.
func RegisterOperatorHandlers(ctx context.Context, b *telebot.Bot, svc OperatorServices, operatorID int64, baseLogger *logrus.Entry) {
	con := &operatorConsole{ctx: ctx, svc: svc, logger: baseLogger}

	g := b.Group()
	g.Use(operatorOnly(operatorID, baseLogger))

	g.Handle("/start", con.handleStart)
	g.Handle("/help", con.handleHelp)
	g.Handle("/ensure", con.handleEnsure)
	g.Handle("/coverage", con.handleCoverage)
	g.Handle("/slots", con.handleSlots)
	g.Handle("/optin", con.handleOptIn)
	g.Handle("/assign", con.handleAssign)
	g.Handle("/cancel", con.handleCancel)
	g.Handle("/clear", con.handleClear)
	g.Handle("/topic", con.handleTopic)
	g.Handle("/create", con.handleCreate)
	g.Handle("/edit", con.handleEdit)
	g.Handle("/delete", con.handleDelete)
}

func (con *operatorConsole) handleStart(c telebot.Context) error {
	return c.Send(fmt.Sprintf("Hello, %s! Use /help for the list of commands.", c.Sender().FirstName))
}

func (con *operatorConsole) handleHelp(c telebot.Context) error {
	return c.Send(operatorHelp)
}

func (con *operatorConsole) handleEnsure(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/ensure", c)
	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	inserted, err := con.svc.Materializer.EnsureUpcomingSlots(cmdCtx, con.svc.HorizonWeeks)
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to materialize slots")
		return c.Send("Could not create upcoming slots: " + app.UserMessage(err))
	}
	handlerLogger.WithField("inserted", inserted).Info("Slots ensured on request")
	return c.Send(fmt.Sprintf("Done. %d new slot(s) created for the next %d weeks.", inserted, con.svc.HorizonWeeks))
}

func (con *operatorConsole) handleCoverage(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/coverage", c)
	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	digest, err := con.svc.Digest.SendDigest(cmdCtx)
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to send coverage digest")
		if digest != nil {
			// Built but not delivered everywhere; show it here anyway.
			return c.Send(digest.Body + "\n\n(delivery failed: " + app.UserMessage(err) + ")")
		}
		return c.Send("Could not build the coverage digest: " + app.UserMessage(err))
	}
	handlerLogger.WithField("groups", digest.Groups).Info("Coverage digest sent on request")
	return c.Send("Coverage digest sent.")
}

func (con *operatorConsole) handleSlots(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/slots", c)
	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	entries, err := con.svc.Digest.Upcoming(cmdCtx)
	if err != nil {
		handlerLogger.WithError(err).Error("Failed to list slots")
		return c.Send("Could not list slots: " + app.UserMessage(err))
	}
	handlerLogger.WithField("slots_count", len(entries)).Info("Listed upcoming slots")
	return c.Send(formatSlotList(entries))
}

func (con *operatorConsole) handleOptIn(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/optin", c)

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /optin <slotID> <phone> [topic]")
	}
	slotID, err := parseSlotID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	handlerLogger = handlerLogger.WithField("slot_id", slotID)

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	confirmed, speaker, err := con.svc.Assignments.OptInByPhone(cmdCtx, slotID, args[1], strings.Join(args[2:], " "))
	if err != nil {
		handlerLogger.WithError(err).Warn("Opt-in failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.WithField("person_id", speaker.ID).Info("Speaker opted in via operator")
	return c.Send(fmt.Sprintf("%s is confirmed for %s %s.", speaker.Name, clock.FormatISODate(confirmed.Date), confirmed.Time))
}

func (con *operatorConsole) handleAssign(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/assign", c)

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /assign <slotID> <phone>")
	}
	slotID, err := parseSlotID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	phoneInput := strings.Join(args[1:], " ")
	handlerLogger = handlerLogger.WithField("slot_id", slotID)

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	speaker, err := con.svc.Assignments.AssignByPhone(cmdCtx, slotID, phoneInput)
	if err != nil {
		handlerLogger.WithError(err).Warn("Assign by phone failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.WithField("person_id", speaker.ID).Info("Speaker assigned by operator")
	return c.Send(fmt.Sprintf("Slot %d assigned to %s.", slotID, speaker.Name))
}

func (con *operatorConsole) handleCancel(c telebot.Context) error {
	return con.withSlotID(c, "/cancel", func(ctx context.Context, slotID int64) (string, error) {
		// The operator is not a speaker; actor 0 with admin rights.
		if err := con.svc.Assignments.Cancel(ctx, slotID, 0, true); err != nil {
			return "", err
		}
		return fmt.Sprintf("Slot %d cancelled; the speaker has been notified.", slotID), nil
	})
}

func (con *operatorConsole) handleClear(c telebot.Context) error {
	return con.withSlotID(c, "/clear", func(ctx context.Context, slotID int64) (string, error) {
		if err := con.svc.Assignments.AdminAssign(ctx, slotID, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Slot %d is open again.", slotID), nil
	})
}

func (con *operatorConsole) handleDelete(c telebot.Context) error {
	return con.withSlotID(c, "/delete", func(ctx context.Context, slotID int64) (string, error) {
		if err := con.svc.Assignments.DeleteSlot(ctx, slotID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Slot %d deleted.", slotID), nil
	})
}

func (con *operatorConsole) handleTopic(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/topic", c)

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /topic <slotID> <text>")
	}
	slotID, err := parseSlotID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	handlerLogger = handlerLogger.WithField("slot_id", slotID)

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	if err := con.svc.Assignments.UpdateTopic(cmdCtx, slotID, 0, true, strings.Join(args[1:], " ")); err != nil {
		handlerLogger.WithError(err).Warn("Topic update failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.Info("Topic updated by operator")
	return c.Send(fmt.Sprintf("Topic for slot %d updated.", slotID))
}

func (con *operatorConsole) handleCreate(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/create", c)

	args := c.Args()
	if len(args) < 2 {
		return c.Send("Usage: /create <YYYY-MM-DD> <HH:MM> [topic]")
	}

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	created, err := con.svc.Assignments.CreateSlot(cmdCtx, args[0], args[1], strings.Join(args[2:], " "), "")
	if err != nil {
		handlerLogger.WithError(err).Warn("Slot creation failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.WithField("slot_id", created.ID).Info("Slot created by operator")
	return c.Send(fmt.Sprintf("Slot #%d created for %s %s.", created.ID, clock.FormatISODate(created.Date), created.Time))
}

func (con *operatorConsole) handleEdit(c telebot.Context) error {
	handlerLogger := commandLogger(con.logger, "/edit", c)

	args := c.Args()
	if len(args) < 3 {
		return c.Send("Usage: /edit <slotID> <YYYY-MM-DD> <HH:MM> [topic]")
	}
	slotID, err := parseSlotID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	handlerLogger = handlerLogger.WithField("slot_id", slotID)

	var topic *string
	if len(args) > 3 {
		t := strings.Join(args[3:], " ")
		topic = &t
	}

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	if err := con.svc.Assignments.EditSlot(cmdCtx, slotID, args[1], args[2], topic, nil); err != nil {
		handlerLogger.WithError(err).Warn("Slot edit failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.Info("Slot edited by operator")
	return c.Send(fmt.Sprintf("Slot %d moved to %s %s.", slotID, args[1], args[2]))
}

// withSlotID runs a command of the form "/cmd <slotID>".
func (con *operatorConsole) withSlotID(c telebot.Context, command string, action func(context.Context, int64) (string, error)) error {
	handlerLogger := commandLogger(con.logger, command, c)

	args := c.Args()
	if len(args) != 1 {
		return c.Send(fmt.Sprintf("Usage: %s <slotID>", command))
	}
	slotID, err := parseSlotID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	handlerLogger = handlerLogger.WithField("slot_id", slotID)

	cmdCtx, cancel := context.WithTimeout(con.ctx, commandTimeout)
	defer cancel()

	reply, err := action(cmdCtx, slotID)
	if err != nil {
		handlerLogger.WithError(err).Warn("Command failed")
		return c.Send(app.UserMessage(err))
	}
	handlerLogger.Info("Command completed")
	return c.Send(reply)
}

func operatorOnly(operatorID int64, baseLogger *logrus.Entry) telebot.MiddlewareFunc {
	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			if c.Sender() == nil || c.Sender().ID != operatorID {
				entry := baseLogger.WithField("command", c.Text())
				if c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Warn("Unauthorized access attempt")
				return c.Send("You are not allowed to use this command.")
			}
			return next(c)
		}
	}
}

func commandLogger(base *logrus.Entry, command string, c telebot.Context) *logrus.Entry {
	l := base.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
	l.Info("Command received")
	return l
}

func parseSlotID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("Slot ID must be a positive number, got %q.", arg)
	}
	return id, nil
}

func formatSlotList(entries []app.DigestEntry) string {
	if len(entries) == 0 {
		return "No upcoming slots."
	}
	var sb strings.Builder
	sb.WriteString("Upcoming slots:\n")
	for _, e := range entries {
		speaker := e.Speaker
		if speaker == "" {
			speaker = "OPEN"
		}
		fmt.Fprintf(&sb, "#%d %s %s - %s", e.Slot.ID, clock.FormatISODate(e.Slot.Date), e.Slot.Time, speaker)
		if e.Slot.Topic != "" {
			fmt.Fprintf(&sb, " (%s)", e.Slot.Topic)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
