// internal/infra/database/postgres_slot_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"speaker_scheduler/internal/clock"
	"speaker_scheduler/internal/domain/slot"

	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

const slotColumns = `id, slot_date, slot_time, topic, notes, status, speaker_id, reminder_24_sent, reminder_6_sent, created_at`

// PostgresSlotRepository implements slot.Repository. Every statement that
// touches speaker_id also writes status and both reminder flags.
type PostgresSlotRepository struct {
	db  *sql.DB
	loc *time.Location // dates are wall-clock dates in this location
}

func NewPostgresSlotRepository(db *sql.DB, loc *time.Location) *PostgresSlotRepository {
	if loc == nil {
		loc = time.Local
	}
	return &PostgresSlotRepository{db: db, loc: loc}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, slot.ErrStore, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresSlotRepository) scanSlot(row rowScanner) (*slot.Slot, error) {
	s := &slot.Slot{}
	var date time.Time
	if err := row.Scan(
		&s.ID, &date, &s.Time, &s.Topic, &s.Notes, &s.Status,
		&s.AssigneeID, &s.Reminder24Sent, &s.Reminder6Sent, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	// DATE columns come back as UTC midnight; re-anchor to the local calendar day.
	s.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	return s, nil
}

func (r *PostgresSlotRepository) List(ctx context.Context, f slot.Filter) ([]*slot.Slot, error) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		args = append(args, clock.FormatISODate(f.From))
		conds = append(conds, fmt.Sprintf("slot_date >= $%d::date", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, clock.FormatISODate(f.To))
		conds = append(conds, fmt.Sprintf("slot_date <= $%d::date", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AssignedOnly {
		conds = append(conds, "speaker_id IS NOT NULL")
	}

	query := `SELECT ` + slotColumns + ` FROM slots`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY slot_date ASC, slot_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("error listing slots", err)
	}
	defer rows.Close()

	slots := make([]*slot.Slot, 0)
	for rows.Next() {
		s, err := r.scanSlot(rows)
		if err != nil {
			return nil, storeErr("error scanning slot row", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("error iterating slot rows", err)
	}
	return slots, nil
}

func (r *PostgresSlotRepository) GetByID(ctx context.Context, id int64) (*slot.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`
	s, err := r.scanSlot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, slot.ErrSlotNotFound
		}
		return nil, storeErr("error getting slot by ID", err)
	}
	return s, nil
}

func (r *PostgresSlotRepository) Insert(ctx context.Context, s *slot.Slot) (int64, error) {
	query := `INSERT INTO slots (slot_date, slot_time, topic, notes, status, speaker_id)
               VALUES ($1::date, $2, $3, $4, $5, $6)
               ON CONFLICT (slot_date, slot_time) DO NOTHING
               RETURNING id, created_at`
	status := slot.StatusOpen
	if s.AssigneeID.Valid {
		status = slot.StatusConfirmed
	}
	err := r.db.QueryRowContext(ctx, query,
		clock.FormatISODate(s.Date), s.Time, s.Topic, s.Notes, status, s.AssigneeID,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, slot.ErrDuplicateSlot
		}
		return 0, storeErr("error inserting slot", err)
	}
	s.Status = status
	s.Reminder24Sent, s.Reminder6Sent = false, false
	return s.ID, nil
}

func (r *PostgresSlotRepository) Assign(ctx context.Context, id, personID int64, topic *string) error {
	query := `UPDATE slots
               SET speaker_id = $1, status = 'confirmed', topic = COALESCE($2::varchar, topic),
                   reminder_24_sent = FALSE, reminder_6_sent = FALSE
               WHERE id = $3 AND speaker_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, personID, topic, id)
	if err != nil {
		return storeErr("error assigning slot", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("error assigning slot", err)
	}
	if affected == 0 {
		if err := r.mustExist(ctx, id); err != nil {
			return err
		}
		return slot.ErrAlreadyConfirmed
	}
	return nil
}

func (r *PostgresSlotRepository) Clear(ctx context.Context, id int64) error {
	query := `UPDATE slots
               SET speaker_id = NULL, status = 'open',
                   reminder_24_sent = FALSE, reminder_6_sent = FALSE
               WHERE id = $1 AND speaker_id IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeErr("error clearing slot", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("error clearing slot", err)
	}
	if affected == 0 {
		if err := r.mustExist(ctx, id); err != nil {
			return err
		}
		return slot.ErrNotAssigned
	}
	return nil
}

func (r *PostgresSlotRepository) Reassign(ctx context.Context, id int64, personID *int64) error {
	speaker := sql.NullInt64{}
	status := slot.StatusOpen
	if personID != nil {
		speaker = sql.NullInt64{Int64: *personID, Valid: true}
		status = slot.StatusConfirmed
	}
	query := `UPDATE slots
               SET speaker_id = $1, status = $2,
                   reminder_24_sent = FALSE, reminder_6_sent = FALSE
               WHERE id = $3`
	return r.execOne(ctx, "error reassigning slot", query, speaker, status, id)
}

func (r *PostgresSlotRepository) UpdateSchedule(ctx context.Context, s *slot.Slot) error {
	query := `UPDATE slots
               SET slot_date = $1::date, slot_time = $2, topic = $3, notes = $4,
                   reminder_24_sent = FALSE, reminder_6_sent = FALSE
               WHERE id = $5`
	err := r.execOne(ctx, "error updating slot", query, clock.FormatISODate(s.Date), s.Time, s.Topic, s.Notes, s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return slot.ErrDuplicateSlot
		}
		return err
	}
	s.Reminder24Sent, s.Reminder6Sent = false, false
	return nil
}

func (r *PostgresSlotRepository) UpdateTopic(ctx context.Context, id int64, topic string) error {
	return r.execOne(ctx, "error updating slot topic", `UPDATE slots SET topic = $1 WHERE id = $2`, topic, id)
}

func (r *PostgresSlotRepository) MarkReminderSent(ctx context.Context, id, assigneeID int64, kind slot.ReminderKind) (bool, error) {
	var column string
	switch kind {
	case slot.ReminderDayBefore:
		column = "reminder_24_sent"
	case slot.ReminderDayOf:
		column = "reminder_6_sent"
	default:
		return false, fmt.Errorf("unknown reminder kind %q", kind)
	}

	query := `UPDATE slots SET ` + column + ` = TRUE WHERE id = $1 AND speaker_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, assigneeID)
	if err != nil {
		return false, storeErr("error marking reminder sent", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("error marking reminder sent", err)
	}
	return affected > 0, nil
}

func (r *PostgresSlotRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "error deleting slot", `DELETE FROM slots WHERE id = $1`, id)
}

// execOne runs a single-row statement and maps zero affected rows to ErrSlotNotFound.
func (r *PostgresSlotRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if affected == 0 {
		return slot.ErrSlotNotFound
	}
	return nil
}

func (r *PostgresSlotRepository) mustExist(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return storeErr("error checking slot existence", err)
	}
	if !exists {
		return slot.ErrSlotNotFound
	}
	return nil
}
