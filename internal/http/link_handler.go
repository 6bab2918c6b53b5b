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

type linkService interface {
	Resolve(ctx context.Context, viewer application.Principal, ref application.LinkRef) (application.LinkView, error)
	Confirm(ctx context.Context, viewer application.Principal, ref application.LinkRef, input application.ConfirmInput) (application.Booking, error)
	IssueShareLink(ctx context.Context, principal application.Principal) (application.ShareLink, error)
}

// LinkHandler serves the public scheduling link endpoints.
type LinkHandler struct {
	service   linkService
	responder responder
	logger    *slog.Logger
	baseURL   string
}

func NewLinkHandler(service linkService, baseURL string, logger *slog.Logger) *LinkHandler {
	base := defaultLogger(logger)
	return &LinkHandler{service: service, responder: newResponder(base), logger: base, baseURL: baseURL}
}

func (h *LinkHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "LinkHandler", operation, attrs...)
}

// refFromRequest reads either the {username} or the {token} route parameter.
func refFromRequest(r *http.Request) application.LinkRef {
	if token := chi.URLParam(r, "token"); token != "" {
		return application.LinkRef{ShareToken: token}
	}
	return application.LinkRef{Username: chi.URLParam(r, "username")}
}

func (h *LinkHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	ref := refFromRequest(r)
	logger := h.log(r.Context(), "Resolve", "viewer_id", viewer.UserID, "link", ref.Identifier())

	view, err := h.service.Resolve(r.Context(), viewer, ref)
	if err != nil {
		logger.ErrorContext(r.Context(), "link resolution failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}
	h.responder.writeJSON(w, r, http.StatusOK, toLinkViewResponse(view))
}

func (h *LinkHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	viewer, _ := PrincipalFromContext(r.Context())
	ref := refFromRequest(r)

	var req confirmRequest
	if err := render.Bind(r, &req); err != nil {
		h.log(r.Context(), "Confirm", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode confirm request", logging.Err(err))
		h.responder.writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Confirm", "viewer_id", viewer.UserID, "link", ref.Identifier())
	booking, err := h.service.Confirm(r.Context(), viewer, ref, req.ConfirmInput)
	if err != nil {
		logger.ErrorContext(r.Context(), "booking confirmation failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "booking confirmed", "booking_token", booking.Token)
	h.responder.writeJSON(w, r, http.StatusCreated, bookingResponse{Booking: toBookingDTO(booking)})
}

func (h *LinkHandler) IssueShare(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "IssueShare", "principal_id", principal.UserID)

	link, err := h.service.IssueShareLink(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "share link issue failed", logging.Err(err), "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(w, r, err)
		return
	}

	logger.InfoContext(r.Context(), "share link issued", logging.Secret("share_token", link.Token))
	h.responder.writeJSON(w, r, http.StatusCreated, toShareLinkResponse(link, h.baseURL))
}
