package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
	"github.com/example/podcoord/internal/logging"
)

type podService interface {
	CreatePod(ctx context.Context, params application.CreatePodParams) (coordination.Pod, error)
	GetPod(ctx context.Context, principal application.Principal, token string) (coordination.Pod, error)
	ListPods(ctx context.Context, principal application.Principal) ([]coordination.Pod, error)
	GetInvite(ctx context.Context, principal application.Principal, token string) (application.InviteView, error)
	StartHunt(ctx context.Context, principal application.Principal, token string) (coordination.Pod, error)
	RerunHunt(ctx context.Context, principal application.Principal, token string) (coordination.Pod, error)
	RefreshHunt(ctx context.Context, principal application.Principal, token string) (coordination.Pod, error)
	Close(ctx context.Context, principal application.Principal, token string) (coordination.Pod, error)
	DeletePod(ctx context.Context, principal application.Principal, token string) error
	AddInvites(ctx context.Context, principal application.Principal, token string, emails []string) (coordination.Pod, error)
	RemoveInvite(ctx context.Context, principal application.Principal, token, email string) (coordination.Pod, error)
	Join(ctx context.Context, principal application.Principal, token string) (coordination.Pod, coordination.JoinOutcome, error)
	ListGoals(ctx context.Context, principal application.Principal, token string) ([]coordination.Goal, error)
	EditGoalInstructions(ctx context.Context, principal application.Principal, token, goalID, instructions string) (coordination.Goal, error)
	AddGoal(ctx context.Context, principal application.Principal, token string, input application.GoalInput) (coordination.Goal, error)
	DeleteGoal(ctx context.Context, principal application.Principal, token, goalID string) (coordination.Pod, error)
}

// PodHandler serves pod, invite and goal endpoints.
type PodHandler struct {
	service   podService
	responder responder
	logger    *slog.Logger
	baseURL   string
}

// NewPodHandler wires the pod endpoints. baseURL prefixes the shareable invite link.
func NewPodHandler(service podService, baseURL string, logger *slog.Logger) *PodHandler {
	base := defaultLogger(logger)
	return &PodHandler{service: service, responder: newResponder(base), logger: base, baseURL: baseURL}
}

func (h *PodHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "PodHandler", operation, attrs...)
}

func (h *PodHandler) unavailable(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return true
	}
	return false
}

func (h *PodHandler) fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string, err error) {
	logger.ErrorContext(r.Context(), message, logging.Err(err), "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(w, r, err)
}

func (h *PodHandler) badRequest(w http.ResponseWriter, r *http.Request, operation string, err error) {
	h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode request body", logging.Err(err))
	h.responder.writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", errBadRequestBody)
}

func (h *PodHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req podRequest
	if err := render.Bind(r, &req); err != nil {
		h.badRequest(w, r, "Create", err)
		return
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "pod_type", req.Type)
	pod, err := h.service.CreatePod(r.Context(), application.CreatePodParams{Principal: principal, Input: req.PodInput})
	if err != nil {
		h.fail(w, r, logger, "pod creation failed", err)
		return
	}

	logger.With("pod_token", pod.Token).InfoContext(r.Context(), "pod created")
	h.responder.writeJSON(w, r, http.StatusCreated, podResponse{Pod: toPodDTO(pod, h.baseURL)})
}

func (h *PodHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "List", "principal_id", principal.UserID)

	pods, err := h.service.ListPods(r.Context(), principal)
	if err != nil {
		h.fail(w, r, logger, "pod listing failed", err)
		return
	}

	resp := podListResponse{Pods: make([]podDTO, 0, len(pods))}
	for _, pod := range pods {
		resp.Pods = append(resp.Pods, toPodDTO(pod, h.baseURL))
	}
	h.responder.writeJSON(w, r, http.StatusOK, resp)
}

func (h *PodHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.podAction(w, r, "Get", "", h.service.GetPod)
}

func (h *PodHandler) Invite(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Invite", "principal_id", principal.UserID, "pod_token", token)

	view, err := h.service.GetInvite(r.Context(), principal, token)
	if err != nil {
		h.fail(w, r, logger, "invite lookup failed", err)
		return
	}

	h.responder.writeJSON(w, r, http.StatusOK, inviteResponse{
		Pod:       toPodDTO(view.Pod, h.baseURL),
		OwnerName: view.OwnerName,
		Joined:    view.Joined,
		Invited:   view.Invited,
	})
}

func (h *PodHandler) StartHunt(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.podAction(w, r, "StartHunt", "hunt started", h.service.StartHunt)
}

func (h *PodHandler) RerunHunt(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.podAction(w, r, "RerunHunt", "hunt rerun", h.service.RerunHunt)
}

func (h *PodHandler) RefreshHunt(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.podAction(w, r, "RefreshHunt", "", h.service.RefreshHunt)
}

func (h *PodHandler) Close(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	h.podAction(w, r, "Close", "pod closed", h.service.Close)
}

// podAction runs a token-addressed operation that answers with the fresh pod.
func (h *PodHandler) podAction(w http.ResponseWriter, r *http.Request, operation, success string, action func(context.Context, application.Principal, string) (coordination.Pod, error)) {
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), operation, "principal_id", principal.UserID, "pod_token", token)

	pod, err := action(r.Context(), principal, token)
	if err != nil {
		h.fail(w, r, logger, "pod operation failed", err)
		return
	}

	if success != "" {
		logger.InfoContext(r.Context(), success, "status", pod.Status)
	}
	h.responder.writeJSON(w, r, http.StatusOK, podResponse{Pod: toPodDTO(pod, h.baseURL)})
}

func (h *PodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Delete", "principal_id", principal.UserID, "pod_token", token)

	if err := h.service.DeletePod(r.Context(), principal, token); err != nil {
		h.fail(w, r, logger, "pod delete failed", err)
		return
	}

	logger.InfoContext(r.Context(), "pod deleted")
	h.responder.writeJSON(w, r, http.StatusNoContent, nil)
}

func (h *PodHandler) AddInvites(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")

	var req invitesRequest
	if err := render.Bind(r, &req); err != nil {
		h.badRequest(w, r, "AddInvites", err)
		return
	}

	logger := h.log(r.Context(), "AddInvites", "principal_id", principal.UserID, "pod_token", token)
	pod, err := h.service.AddInvites(r.Context(), principal, token, req.Emails)
	if err != nil {
		h.fail(w, r, logger, "adding invites failed", err)
		return
	}

	logger.InfoContext(r.Context(), "invites added", "invite_count", len(pod.InviteEmails))
	h.responder.writeJSON(w, r, http.StatusOK, podResponse{Pod: toPodDTO(pod, h.baseURL)})
}

func (h *PodHandler) RemoveInvite(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		h.badRequest(w, r, "RemoveInvite", err)
		return
	}

	logger := h.log(r.Context(), "RemoveInvite", "principal_id", principal.UserID, "pod_token", token)
	pod, err := h.service.RemoveInvite(r.Context(), principal, token, email)
	if err != nil {
		h.fail(w, r, logger, "removing invite failed", err)
		return
	}

	logger.InfoContext(r.Context(), "invite removed")
	h.responder.writeJSON(w, r, http.StatusOK, podResponse{Pod: toPodDTO(pod, h.baseURL)})
}

func (h *PodHandler) Join(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "Join", "principal_id", principal.UserID, "pod_token", token)

	pod, outcome, err := h.service.Join(r.Context(), principal, token)
	if err != nil {
		h.fail(w, r, logger, "join failed", err)
		return
	}

	logger.InfoContext(r.Context(), "join handled", "outcome", outcome)
	h.responder.writeJSON(w, r, http.StatusOK, joinResponse{Pod: toPodDTO(pod, h.baseURL), Outcome: string(outcome)})
}

func (h *PodHandler) ListGoals(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	logger := h.log(r.Context(), "ListGoals", "principal_id", principal.UserID, "pod_token", token)

	goals, err := h.service.ListGoals(r.Context(), principal, token)
	if err != nil {
		h.fail(w, r, logger, "goal listing failed", err)
		return
	}
	h.responder.writeJSON(w, r, http.StatusOK, goalListResponse{Goals: toGoalDTOs(goals)})
}

func (h *PodHandler) AddGoal(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")

	var req goalRequest
	if err := render.Bind(r, &req); err != nil {
		h.badRequest(w, r, "AddGoal", err)
		return
	}

	logger := h.log(r.Context(), "AddGoal", "principal_id", principal.UserID, "pod_token", token)
	goal, err := h.service.AddGoal(r.Context(), principal, token, req.GoalInput)
	if err != nil {
		h.fail(w, r, logger, "adding goal failed", err)
		return
	}

	logger.InfoContext(r.Context(), "goal added", "goal_id", goal.ID)
	h.responder.writeJSON(w, r, http.StatusCreated, goalResponse{Goal: toGoalDTO(goal)})
}

func (h *PodHandler) EditGoal(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	goalID := chi.URLParam(r, "goalID")

	var req instructionsRequest
	if err := render.Bind(r, &req); err != nil {
		h.badRequest(w, r, "EditGoal", err)
		return
	}

	logger := h.log(r.Context(), "EditGoal", "principal_id", principal.UserID, "pod_token", token, "goal_id", goalID)
	goal, err := h.service.EditGoalInstructions(r.Context(), principal, token, goalID, req.Instructions)
	if err != nil {
		h.fail(w, r, logger, "editing goal failed", err)
		return
	}

	logger.InfoContext(r.Context(), "goal instructions updated")
	h.responder.writeJSON(w, r, http.StatusOK, goalResponse{Goal: toGoalDTO(goal)})
}

func (h *PodHandler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	token := chi.URLParam(r, "token")
	goalID := chi.URLParam(r, "goalID")
	logger := h.log(r.Context(), "DeleteGoal", "principal_id", principal.UserID, "pod_token", token, "goal_id", goalID)

	pod, err := h.service.DeleteGoal(r.Context(), principal, token, goalID)
	if err != nil {
		h.fail(w, r, logger, "deleting goal failed", err)
		return
	}

	logger.InfoContext(r.Context(), "goal deleted")
	h.responder.writeJSON(w, r, http.StatusOK, podResponse{Pod: toPodDTO(pod, h.baseURL)})
}
