package domain

import "context"

// AssignmentEvent announces that assignments became available for the
// listed participants. It is emitted after a successful commit, never
// before.
type AssignmentEvent struct {
	GroupID        string
	ParticipantIDs []string
}

// Notifier is the outbound notification collaborator. Emission is
// best-effort: a failing notifier must never roll back or block an
// assignment commit, so the service logs and swallows its errors.
type Notifier interface {
	AssignmentAvailable(ctx context.Context, event AssignmentEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event AssignmentEvent) error

// AssignmentAvailable implements Notifier.
func (f NotifierFunc) AssignmentAvailable(ctx context.Context, event AssignmentEvent) error {
	return f(ctx, event)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// AssignmentAvailable implements Notifier.
func (NopNotifier) AssignmentAvailable(context.Context, AssignmentEvent) error {
	return nil
}
