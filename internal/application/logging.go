package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/podcoord/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// serviceLogger prefers the request-scoped logger so request ids follow the
// call into the service layer.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
	}
	logger = logger.With(slog.String("service", serviceName))
	if operation != "" {
		logger = logger.With(slog.String("operation", operation))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// logOutcome is deferred by service operations to emit one line per call.
// Rejections a caller can fix are logged at warn, everything else at error.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, failure, success string, attrs ...any) {
	if err == nil {
		logger.InfoContext(ctx, success, attrs...)
		return
	}
	kind := ErrorKind(err)
	level := slog.LevelWarn
	if !isExpected(err) {
		level = slog.LevelError
	}
	logger.Log(ctx, level, failure, logging.Err(err), slog.String("error_kind", kind))
}

func isExpected(err error) bool {
	switch ErrorKind(err) {
	case kindUnexpected, "hunt_transient_failure", "ranking_unavailable":
		return false
	}
	return true
}

const kindUnexpected = "unexpected"

var errorKinds = []struct {
	target error
	kind   string
}{
	{ErrUnauthorized, "unauthorized"},
	{ErrNotFound, "not_found"},
	{ErrNotOwner, "not_owner"},
	{ErrNotInvited, "not_invited"},
	{ErrPodClosed, "pod_closed"},
	{ErrInviteesNotJoined, "invitees_not_joined"},
	{ErrCalendarNotConnected, "calendar_not_connected"},
	{ErrIllegalTransition, "illegal_transition"},
	{ErrHuntTransientFailure, "hunt_transient_failure"},
	{ErrRankingUnavailable, "ranking_unavailable"},
	{ErrLinkNotFound, "link_not_found"},
	{ErrLinkExpired, "link_expired"},
	{ErrBookingCanceled, "booking_canceled"},
}

// ErrorKind labels an error for logs and error codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return kindUnexpected
}
