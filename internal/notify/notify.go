// Package notify defines the outbound notification port. The delivery
// workflow reports noteworthy transitions through it; transports plug in
// behind the interface.
package notify

import "context"

// Notification is one message destined for an account.
type Notification struct {
	AccountID string
	Subject   string
	Body      string
}

// Dispatcher delivers notifications. Implementations must tolerate being
// called concurrently. Dispatch failures are reported to the caller, which
// decides whether the triggering operation still counts as done.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Discard is a Dispatcher that drops every notification. It is the default
// when no transport is configured.
type Discard struct{}

func (Discard) Dispatch(ctx context.Context, n Notification) error {
	return nil
}
