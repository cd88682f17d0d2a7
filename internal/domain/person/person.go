package person

import (
	"context"
	"errors"
)

var ErrPersonNotFound = errors.New("person not found")

// Person is a volunteer speaker or admin as seen by the scheduling engine.
// The user directory owns the full record.
type Person struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

// Directory looks people up. Both methods return ErrPersonNotFound on a miss.
type Directory interface {
	FindByID(ctx context.Context, id int64) (*Person, error)
	// FindByPhone expects a number already passed through phone.Normalize.
	FindByPhone(ctx context.Context, normalizedPhone string) (*Person, error)
}
