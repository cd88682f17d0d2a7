package database

import (
	"context"
	"database/sql"
	"errors"

	"speaker_scheduler/internal/domain/person"
	"speaker_scheduler/internal/phone"

	"github.com/lib/pq" // For pq.Array
)

// PostgresPersonRepository is a read-only view of the users table,
// implementing person.Directory.
type PostgresPersonRepository struct {
	db *sql.DB
}

func NewPostgresPersonRepository(db *sql.DB) *PostgresPersonRepository {
	return &PostgresPersonRepository{db: db}
}

func scanPerson(row rowScanner) (*person.Person, error) {
	p := &person.Person{}
	var email sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &email, &p.Phone); err != nil {
		return nil, err
	}
	p.Email = email.String
	return p, nil
}

func (r *PostgresPersonRepository) FindByID(ctx context.Context, id int64) (*person.Person, error) {
	query := `SELECT id, name, email, phone FROM users WHERE id = $1`
	p, err := scanPerson(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, person.ErrPersonNotFound
		}
		return nil, storeErr("error getting person by ID", err)
	}
	return p, nil
}

// FindByPhone matches stored numbers by their digits, with and without the
// country code, since users entered them in whatever format they liked.
func (r *PostgresPersonRepository) FindByPhone(ctx context.Context, normalizedPhone string) (*person.Person, error) {
	variants := phone.Variants(normalizedPhone)
	if len(variants) == 0 {
		return nil, person.ErrPersonNotFound
	}

	query := `SELECT id, name, email, phone FROM users
               WHERE regexp_replace(phone, '\D', '', 'g') = ANY($1::text[])
               ORDER BY id
               LIMIT 1`
	p, err := scanPerson(r.db.QueryRowContext(ctx, query, pq.Array(variants)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, person.ErrPersonNotFound
		}
		return nil, storeErr("error getting person by phone", err)
	}
	return p, nil
}
