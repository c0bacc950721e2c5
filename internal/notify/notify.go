package notify

import (
	"context"
	"errors"
)

// Kind identifies which event a message reports
type Kind string

const (
	KindStarted   Kind = "monitor_started"
	KindStopped   Kind = "monitor_stopped"
	KindAvailable Kind = "gpus_available"
	KindSucceeded Kind = "execution_succeeded"
	KindFailed    Kind = "execution_failed"
	KindTimedOut  Kind = "execution_timeout"
	KindError     Kind = "execution_error"
)

// Message is a plaintext notification for the operator
type Message struct {
	Kind    Kind
	Subject string
	Body    string
}

// Notifier delivers messages to the operator. Implementations log delivery
// failures and return them; the caller decides whether they are fatal.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Multi fans a message out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
