// Package notify publishes run-completion events so downstream tooling
// (alerting, report generation) can react without polling the API.
package notify

import "context"

// Publisher sends one JSON payload to a named topic and returns the
// broker's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// NoOp discards every publish. Used when notifications are disabled.
type NoOp struct{}

// Publish does nothing and always succeeds.
func (NoOp) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}
