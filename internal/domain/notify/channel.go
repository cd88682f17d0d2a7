package notify

import (
	"context"
	"errors"

	"speaker_scheduler/internal/domain/person"
)

// ErrDelivery wraps every failed notification send.
var ErrDelivery = errors.New("notification delivery failed")

// Channel delivers a message to a person. A person without any reachable
// address is a logged no-op, not an error.
type Channel interface {
	Send(ctx context.Context, to *person.Person, subject, body string) error
}

// Operator delivers a message to the fixed operator address.
type Operator interface {
	NotifyOperator(ctx context.Context, subject, body string) error
}
