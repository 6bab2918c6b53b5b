package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/logging"
)

var (
	errBadRequestBody  = errors.New("request body is not valid JSON")
	errSignInRequired  = errors.New("sign in to continue")
	errInvalidToken    = errors.New("authorization token is invalid")
	errTooManyRequests = errors.New("too many requests, slow down")
)

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (rs responder) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, payload)
}

func (rs responder) writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	rs.writeJSON(w, r, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError translates service sentinels into the public error envelope.
func (rs responder) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		rs.writeError(w, r, http.StatusInternalServerError, "INTERNAL", errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		rs.writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request contains invalid fields",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		rs.loggerFor(r.Context()).ErrorContext(r.Context(), "unhandled service error", logging.Err(err))
		rs.writeError(w, r, status, "INTERNAL", errors.New(message))
		return
	}
	rs.writeError(w, r, status, strings.ToUpper(application.ErrorKind(err)), errors.New(message))
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrNotOwner):
		return http.StatusForbidden, "only the pod owner can do that"
	case errors.Is(err, application.ErrUnauthorized):
		return http.StatusForbidden, "you do not have access to this resource"
	case errors.Is(err, application.ErrNotInvited):
		return http.StatusForbidden, "your email is not on the invite list"
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, application.ErrLinkNotFound):
		return http.StatusNotFound, "scheduling link not found"
	case errors.Is(err, application.ErrLinkExpired):
		return http.StatusGone, "this scheduling link has expired or was already used"
	case errors.Is(err, application.ErrPodClosed):
		return http.StatusConflict, "the pod is closed"
	case errors.Is(err, application.ErrIllegalTransition):
		return http.StatusConflict, "the action is not allowed in the pod's current status"
	case errors.Is(err, application.ErrInviteesNotJoined):
		return http.StatusConflict, "every invitee must join before the hunt can start"
	case errors.Is(err, application.ErrCalendarNotConnected):
		return http.StatusConflict, "connect your calendar first"
	case errors.Is(err, application.ErrBookingCanceled):
		return http.StatusConflict, "the booking is canceled"
	case errors.Is(err, application.ErrHuntTransientFailure):
		return http.StatusServiceUnavailable, "the hunt engine is unavailable, try again shortly"
	case errors.Is(err, application.ErrRankingUnavailable):
		return http.StatusServiceUnavailable, "slot suggestions are unavailable, try again shortly"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (rs responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return rs.logger
}
