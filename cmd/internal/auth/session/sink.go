package session

import (
	"context"
	"log/slog"
)

// ErrorSink receives internal failures. Reporting is fire-and-forget.
type ErrorSink interface {
	Report(ctx context.Context, err error)
}

// LogErrorSink reports errors through slog.
type LogErrorSink struct {
	Log *slog.Logger
}

// Report logs err at error level.
func (s LogErrorSink) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.ErrorContext(ctx, "session.internal", "err", err)
}

type discardSink struct{}

func (discardSink) Report(context.Context, error) {}
