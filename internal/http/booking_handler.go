package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/logging"
)

type bookingService interface {
	GetBooking(ctx context.Context, viewer application.Principal, token string) (application.BookingView, error)
	Reschedule(ctx context.Context, viewer application.Principal, token string) (application.RescheduleResult, error)
	Cancel(ctx context.Context, viewer application.Principal, token string) (application.Booking, error)
	UpdateNotes(ctx context.Context, viewer application.Principal, token, notes string) (application.Booking, error)
}

// BookingHandler serves the booking detail endpoints.
type BookingHandler struct {
	service   bookingService
	responder responder
	logger    *slog.Logger
	baseURL   string
}

func NewBookingHandler(service bookingService, baseURL string, logger *slog.Logger) *BookingHandler {
	base := defaultLogger(logger)
	return &BookingHandler{service: service, responder: newResponder(base), logger: base, baseURL: baseURL}
}

func (h *BookingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BookingHandler", operation, attrs...)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Get", "viewer_id", viewer.UserID, "booking_token", token)

	view, err := h.service.GetBooking(r.Context(), viewer, token)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking lookup failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	h.responder.writeJSON(w, r, http.StatusOK, bookingViewResponse{
		Booking: toBookingDTO(view.Booking),
		Viewer:  viewerDTO{Role: string(view.Role), ShowSignupCTA: view.ShowSignupCTA},
	})
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Reschedule", "viewer_id", viewer.UserID, "booking_token", token)

	result, err := h.service.Reschedule(r.Context(), viewer, token)
	if err != nil {
		logger.ErrorContext(r.Context(), "reschedule failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "reschedule link issued")
	h.responder.writeJSON(w, r, http.StatusOK, rescheduleResponse{
		Message:        result.Message,
		RescheduleLink: joinURL(h.baseURL, "share", result.Link.Token),
		Booking:        toBookingDTO(result.Booking),
	})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Cancel", "viewer_id", viewer.UserID, "booking_token", token)

	booking, err := h.service.Cancel(r.Context(), viewer, token)
	if err != nil {
		logger.ErrorContext(r.Context(), "cancel failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking canceled")
	h.responder.writeJSON(w, r, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *BookingHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")

	var req notesRequest
	if err := render.Bind(r, &req); err != nil {
		h.log(r.Context(), "UpdateNotes", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode notes request", logging.Err(err))
		h.responder.writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateNotes", "viewer_id", viewer.UserID, "booking_token", token)
	booking, err := h.service.UpdateNotes(r.Context(), viewer, token, req.Notes)
	if err != nil {
		logger.ErrorContext(r.Context(), "notes update failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking notes updated")
	h.responder.writeJSON(w, r, http.StatusOK, bookingResponse{Booking: toBookingDTO(booking)})
}
