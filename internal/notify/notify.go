// Package notify abstracts the platform notification mechanism. The
// core only produces a title, a body, and an optional fire time; how
// they reach the user is the platform's concern.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives user-facing notifications.
type Sink interface {
	Notify(ctx context.Context, title, body string, at *time.Time) error
}

// SlogSink writes notifications to the structured log. Stands in for a
// real delivery mechanism on headless deployments.
type SlogSink struct{}

func (SlogSink) Notify(_ context.Context, title, body string, at *time.Time) error {
	attrs := []any{
		"component", "notify",
		"title", title,
		"body", body,
	}
	if at != nil {
		attrs = append(attrs, "fire_at", at.Format(time.RFC3339))
	}
	slog.Info("notification", attrs...)
	return nil
}

// NoopSink discards notifications.
type NoopSink struct{}

func (NoopSink) Notify(context.Context, string, string, *time.Time) error { return nil }
