package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/podcoord/internal/coordination"
	"github.com/example/podcoord/internal/persistence"
)

// PodRepository captures the persistence operations needed by the pod service.
// UpdatePod replaces the stored goal set with the one carried by the pod.
type PodRepository interface {
	CreatePod(ctx context.Context, pod coordination.Pod) (coordination.Pod, error)
	GetPod(ctx context.Context, token string) (coordination.Pod, error)
	UpdatePod(ctx context.Context, pod coordination.Pod) (coordination.Pod, error)
	DeletePod(ctx context.Context, token string) error
	ListPodsForMember(ctx context.Context, userID, email string) ([]coordination.Pod, error)
}

// AccountDirectory resolves accounts and their calendar capability.
type AccountDirectory interface {
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
}

// HuntEngine is the external collaborator that fills goal values.
type HuntEngine interface {
	StartHunt(ctx context.Context, pod coordination.Pod) ([]coordination.GoalValue, error)
	HuntStatus(ctx context.Context, podToken string) ([]coordination.GoalValue, error)
}

// PodService orchestrates the pod lifecycle, the invite gate and the goal ledger.
type PodService struct {
	pods        PodRepository
	accounts    AccountDirectory
	engine      HuntEngine
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	locks       *keyedMutex
}

// NewPodService constructs a pod service with the provided dependencies.
func NewPodService(pods PodRepository, accounts AccountDirectory, engine HuntEngine, idGenerator func() string, now func() time.Time) *PodService {
	return NewPodServiceWithLogger(pods, accounts, engine, idGenerator, now, nil)
}

// NewPodServiceWithLogger constructs a pod service with a specified logger.
func NewPodServiceWithLogger(pods PodRepository, accounts AccountDirectory, engine HuntEngine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PodService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PodService{
		pods:        pods,
		accounts:    accounts,
		engine:      engine,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		locks:       newKeyedMutex(),
	}
}

func (s *PodService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PodService", operation, attrs...)
}

func (s *PodService) ready() error {
	if s == nil {
		return fmt.Errorf("PodService is nil")
	}
	if s.pods == nil {
		return fmt.Errorf("pod repository not configured")
	}
	return nil
}

// CreatePod validates input and stores a new idle pod owned by the principal.
func (s *PodService) CreatePod(ctx context.Context, params CreatePodParams) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if !params.Principal.SignedIn() {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "CreatePod", "principal_id", params.Principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create pod", "pod created", "pod_token", pod.Token)
	}()

	invites, vErr := validatePodInput(params.Principal, params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	pod = coordination.Pod{
		Token:       s.idGenerator(),
		Type:        coordination.PodType(params.Input.Type),
		Status:      coordination.StatusIdle,
		Description: strings.TrimSpace(params.Input.Description),
		OwnerID:     params.Principal.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	pod.AddInvites(invites...)

	if pod.Type == coordination.PodTypeMeeting {
		pod.Goals = coordination.MeetingGoals()
	} else {
		for i, input := range params.Input.Goals {
			pod.Goals = append(pod.Goals, newGoal(input, i))
		}
	}
	for i := range pod.Goals {
		pod.Goals[i].ID = s.idGenerator()
		pod.Goals[i].PodToken = pod.Token
	}

	pod, err = s.pods.CreatePod(ctx, pod)
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// GetPod returns a pod visible to the principal as owner or invitee.
func (s *PodService) GetPod(ctx context.Context, principal Principal, token string) (coordination.Pod, error) {
	if err := s.ready(); err != nil {
		return coordination.Pod{}, err
	}
	return s.loadVisible(ctx, principal, token)
}

// ListPods returns the pods the principal owns or is invited to, newest first.
func (s *PodService) ListPods(ctx context.Context, principal Principal) (pods []coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if !principal.SignedIn() {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "ListPods", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to list pods", "pods listed", "result_count", len(pods))
	}()

	pods, err = s.pods.ListPodsForMember(ctx, principal.UserID, principal.Email)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	sort.SliceStable(pods, func(i, j int) bool {
		if pods[i].CreatedAt.Equal(pods[j].CreatedAt) {
			return pods[i].Token < pods[j].Token
		}
		return pods[i].CreatedAt.After(pods[j].CreatedAt)
	})
	return
}

// GetInvite returns the invite page view to any signed-in holder of the link.
func (s *PodService) GetInvite(ctx context.Context, principal Principal, token string) (InviteView, error) {
	if err := s.ready(); err != nil {
		return InviteView{}, err
	}
	if !principal.SignedIn() {
		return InviteView{}, ErrUnauthorized
	}

	pod, err := s.pods.GetPod(ctx, token)
	if err != nil {
		return InviteView{}, mapRepoError(err)
	}

	view := InviteView{
		Pod:     pod,
		Invited: pod.IsInvitee(principal.Email),
		Joined:  pod.HasJoined(principal.Email),
	}
	if s.accounts != nil {
		if owner, err := s.accounts.GetAccount(ctx, pod.OwnerID); err == nil {
			view.OwnerName = owner.Name
		}
	}
	return view, nil
}

// StartHunt triggers the engine for an idle pod, or retries after a transient failure.
func (s *PodService) StartHunt(ctx context.Context, principal Principal, token string) (coordination.Pod, error) {
	return s.runHunt(ctx, principal, token, "StartHunt", coordination.CheckStartHunt)
}

// RerunHunt re-triggers the engine for a pod awaiting review.
func (s *PodService) RerunHunt(ctx context.Context, principal Principal, token string) (coordination.Pod, error) {
	return s.runHunt(ctx, principal, token, "RerunHunt", coordination.CheckRerunHunt)
}

type huntGuard func(pod coordination.Pod, callerID string, calendarConnected bool) error

func (s *PodService) runHunt(ctx context.Context, principal Principal, token, operation string, guard huntGuard) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, operation, "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "hunt failed", "hunt completed", "status", pod.Status)
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		connected, err := s.calendarConnected(ctx, *current, current.OwnerID)
		if err != nil {
			return err
		}
		if err := guard(*current, principal.UserID, connected); err != nil {
			return err
		}
		current.BeginHunt()
		return nil
	})
	if err != nil {
		return
	}

	var values []coordination.GoalValue
	var engineErr error
	if s.engine == nil {
		engineErr = errors.New("hunt engine not configured")
	} else {
		values, engineErr = s.engine.StartHunt(ctx, pod)
	}

	return s.settleHunt(ctx, logger, token, values, engineErr)
}

// RefreshHunt pulls the engine's current values for a running pod.
// Pods in any other status are returned unchanged.
func (s *PodService) RefreshHunt(ctx context.Context, principal Principal, token string) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	pod, err = s.loadVisible(ctx, principal, token)
	if err != nil || pod.Status != coordination.StatusRunning {
		return
	}

	logger := s.loggerWith(ctx, "RefreshHunt", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "refresh failed", "hunt refreshed", "status", pod.Status)
	}()

	if s.engine == nil {
		return
	}
	values, engineErr := s.engine.HuntStatus(ctx, token)
	return s.settleHunt(ctx, logger, token, values, engineErr)
}

// settleHunt applies an engine outcome if the pod is still running. Results that
// arrive after a close (or any other status change) are discarded. Engine errors and
// partial fills both leave a hunt error on the running pod and surface as transient.
func (s *PodService) settleHunt(ctx context.Context, logger *slog.Logger, token string, values []coordination.GoalValue, engineErr error) (coordination.Pod, error) {
	discarded := false
	pod, err := s.mutate(ctx, token, func(current *coordination.Pod) error {
		if current.Status != coordination.StatusRunning {
			discarded = true
			return errSkipWrite
		}
		if engineErr != nil {
			current.FailHunt(engineErr.Error())
			return nil
		}
		current.ApplyHuntValues(values)
		return nil
	})
	if err != nil {
		return pod, err
	}
	if discarded {
		logger.InfoContext(ctx, "discarded late hunt result", "status", pod.Status)
		return pod, nil
	}
	if engineErr != nil {
		return pod, fmt.Errorf("%w: %s", ErrHuntTransientFailure, engineErr.Error())
	}
	if pod.HuntError != "" {
		return pod, fmt.Errorf("%w: %s", ErrHuntTransientFailure, pod.HuntError)
	}
	return pod, nil
}

// Close moves the pod into its terminal status.
func (s *PodService) Close(ctx context.Context, principal Principal, token string) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Close", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to close pod", "pod closed")
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckClose(*current, principal.UserID); err != nil {
			return err
		}
		current.Close()
		return nil
	})
	return
}

// DeletePod removes an owned pod together with its goals.
func (s *PodService) DeletePod(ctx context.Context, principal Principal, token string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeletePod", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete pod", "pod deleted")
	}()

	unlock := s.locks.lock(token)
	defer unlock()

	var pod coordination.Pod
	pod, err = s.pods.GetPod(ctx, token)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !pod.IsOwner(principal.UserID) {
		err = ErrNotOwner
		return
	}
	if err = s.pods.DeletePod(ctx, token); err != nil {
		err = mapRepoError(err)
	}
	return
}

// AddInvites invites new emails. Already invited addresses are ignored.
func (s *PodService) AddInvites(ctx context.Context, principal Principal, token string, emails []string) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AddInvites", "principal_id", principal.UserID, "pod_token", token)
	added := 0
	defer func() {
		logOutcome(ctx, logger, err, "failed to add invites", "invites added", "added", added)
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckInviteChange(*current, principal.UserID); err != nil {
			return err
		}
		vErr := &ValidationError{}
		valid := validateInviteEmails(vErr, principal, emails)
		if len(emails) == 0 {
			vErr.add("emails", "at least one email is required")
		}
		if vErr.HasErrors() {
			return vErr
		}
		added = len(current.AddInvites(valid...))
		if added == 0 {
			return errSkipWrite
		}
		return nil
	})
	return
}

// RemoveInvite revokes an invite and any membership it granted.
func (s *PodService) RemoveInvite(ctx context.Context, principal Principal, token, email string) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RemoveInvite", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to remove invite", "invite removed")
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckInviteChange(*current, principal.UserID); err != nil {
			return err
		}
		if !current.RemoveInvite(email) {
			return errSkipWrite
		}
		return nil
	})
	return
}

// Join records the principal's membership using their authenticated email.
func (s *PodService) Join(ctx context.Context, principal Principal, token string) (pod coordination.Pod, outcome coordination.JoinOutcome, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if !principal.SignedIn() {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "Join", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to join pod", "join processed", "outcome", outcome)
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		connected, err := s.calendarConnected(ctx, *current, principal.UserID)
		if err != nil {
			return err
		}
		outcome, err = current.Join(principal.Email, connected)
		if err != nil {
			return err
		}
		if outcome != coordination.JoinJoined {
			return errSkipWrite
		}
		return nil
	})
	return
}

// ListGoals returns the ordered goal ledger of a visible pod.
func (s *PodService) ListGoals(ctx context.Context, principal Principal, token string) ([]coordination.Goal, error) {
	pod, err := s.GetPod(ctx, principal, token)
	if err != nil {
		return nil, err
	}
	return pod.Goals, nil
}

// EditGoalInstructions replaces a goal's instructions. The current value is kept
// until the next hunt overwrites it.
func (s *PodService) EditGoalInstructions(ctx context.Context, principal Principal, token, goalID, instructions string) (goal coordination.Goal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "EditGoalInstructions", "principal_id", principal.UserID, "pod_token", token, "goal_id", goalID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to edit goal", "goal instructions updated")
	}()

	instructions = strings.TrimSpace(instructions)

	_, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckEditInstructions(*current, principal.UserID); err != nil {
			return err
		}
		if len(instructions) > 2000 {
			return validationFailure("instructions", "instructions must be at most 2000 characters")
		}
		idx := current.FindGoal(goalID)
		if idx < 0 {
			return coordination.ErrGoalNotFound
		}
		current.Goals[idx].Instructions = instructions
		goal = current.Goals[idx].Clone()
		return nil
	})
	return
}

// AddGoal appends an owner-defined goal to an idle generic pod.
func (s *PodService) AddGoal(ctx context.Context, principal Principal, token string, input GoalInput) (goal coordination.Goal, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "AddGoal", "principal_id", principal.UserID, "pod_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to add goal", "goal added", "goal_id", goal.ID)
	}()

	_, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckAddGoal(*current, principal.UserID); err != nil {
			return err
		}
		vErr := validateStruct(input)
		if strings.TrimSpace(input.Name) == "" {
			vErr.add("name", "name is required")
		}
		if vErr.HasErrors() {
			return vErr
		}
		position := 0
		for _, existing := range current.Goals {
			if existing.Position >= position {
				position = existing.Position + 1
			}
		}
		goal = newGoal(input, position)
		goal.ID = s.idGenerator()
		goal.PodToken = current.Token
		current.Goals = append(current.Goals, goal)
		return nil
	})
	return
}

// DeleteGoal removes a goal from an idle generic pod, keeping at least one.
func (s *PodService) DeleteGoal(ctx context.Context, principal Principal, token, goalID string) (pod coordination.Pod, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteGoal", "principal_id", principal.UserID, "pod_token", token, "goal_id", goalID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete goal", "goal deleted")
	}()

	pod, err = s.mutate(ctx, token, func(current *coordination.Pod) error {
		if err := coordination.CheckDeleteGoal(*current, principal.UserID); err != nil {
			return err
		}
		idx := current.FindGoal(goalID)
		if idx < 0 {
			return coordination.ErrGoalNotFound
		}
		current.Goals = append(current.Goals[:idx:idx], current.Goals[idx+1:]...)
		for i := range current.Goals {
			current.Goals[i].Position = i
		}
		return nil
	})
	return
}

// errSkipWrite tells mutate that the change function decided nothing needs saving.
var errSkipWrite = errors.New("skip write")

// mutate runs fn against the freshly loaded pod while holding the pod's lock and
// persists the result. Guards inside fn see the latest committed state.
func (s *PodService) mutate(ctx context.Context, token string, fn func(*coordination.Pod) error) (coordination.Pod, error) {
	unlock := s.locks.lock(token)
	defer unlock()

	current, err := s.pods.GetPod(ctx, token)
	if err != nil {
		return coordination.Pod{}, mapRepoError(err)
	}
	original := current.Clone()

	if err := fn(&current); err != nil {
		if errors.Is(err, errSkipWrite) {
			return original, nil
		}
		return original, mapGoalError(err)
	}

	current.UpdatedAt = s.now()
	updated, err := s.pods.UpdatePod(ctx, current)
	if err != nil {
		return original, mapRepoError(err)
	}
	return updated, nil
}

func (s *PodService) loadVisible(ctx context.Context, principal Principal, token string) (coordination.Pod, error) {
	if !principal.SignedIn() {
		return coordination.Pod{}, ErrUnauthorized
	}
	pod, err := s.pods.GetPod(ctx, token)
	if err != nil {
		return coordination.Pod{}, mapRepoError(err)
	}
	if !pod.IsMember(principal.UserID, principal.Email) {
		return coordination.Pod{}, ErrNotFound
	}
	return pod, nil
}

// calendarConnected looks up the account only when the pod type needs it.
func (s *PodService) calendarConnected(ctx context.Context, pod coordination.Pod, accountID string) (bool, error) {
	if pod.Type != coordination.PodTypeMeeting || accountID == "" {
		return false, nil
	}
	if s.accounts == nil {
		return false, nil
	}
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(mapRepoError(err), ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.CalendarConnected, nil
}

func newGoal(input GoalInput, position int) coordination.Goal {
	goalType := strings.TrimSpace(input.Type)
	if goalType == "" {
		goalType = "custom"
	}
	return coordination.Goal{
		Name:         strings.TrimSpace(input.Name),
		Type:         goalType,
		Instructions: strings.TrimSpace(input.Instructions),
		Status:       coordination.GoalStatusPending,
		Position:     position,
	}
}

func validatePodInput(principal Principal, input PodInput) ([]string, *ValidationError) {
	vErr := validateStruct(input)
	if strings.TrimSpace(input.Description) == "" {
		vErr.add("description", "description is required")
	}

	invites := validateInviteEmails(vErr, principal, input.InviteEmails)

	switch coordination.PodType(input.Type) {
	case coordination.PodTypeGeneric:
		switch {
		case len(input.Goals) == 0:
			vErr.add("goals", "at least one goal is required")
		case len(input.Goals) > coordination.MaxGenericGoals:
			vErr.add("goals", fmt.Sprintf("at most %d goals are allowed", coordination.MaxGenericGoals))
		}
		for i, goal := range input.Goals {
			if goalErr := validateStruct(goal); goalErr.HasErrors() {
				for field, msg := range goalErr.FieldErrors {
					vErr.add(fmt.Sprintf("goals[%d].%s", i, field), msg)
				}
			}
			if strings.TrimSpace(goal.Name) == "" {
				vErr.add(fmt.Sprintf("goals[%d].name", i), "name is required")
			}
		}
	case coordination.PodTypeMeeting:
		if len(input.Goals) > 0 {
			vErr.add("goals", "meeting pods use the fixed meeting goals")
		}
	}
	return invites, vErr
}

func validateInviteEmails(vErr *ValidationError, principal Principal, emails []string) []string {
	out := make([]string, 0, len(emails))
	for i, email := range emails {
		trimmed := strings.TrimSpace(email)
		field := fmt.Sprintf("invite_emails[%d]", i)
		switch {
		case !validEmail(trimmed):
			vErr.add(field, "must be a valid email address")
		case principal.Email != "" && coordination.NormalizeEmail(trimmed) == coordination.NormalizeEmail(principal.Email):
			vErr.add(field, "you cannot invite yourself")
		default:
			out = append(out, trimmed)
		}
	}
	return out
}

func mapGoalError(err error) error {
	switch {
	case errors.Is(err, coordination.ErrGoalNotFound):
		return ErrNotFound
	case errors.Is(err, coordination.ErrGoalLimit):
		return validationFailure("goals", fmt.Sprintf("at most %d goals are allowed", coordination.MaxGenericGoals))
	case errors.Is(err, coordination.ErrLastGoal):
		return validationFailure("goals", "a pod must keep at least one goal")
	case errors.Is(err, coordination.ErrFixedGoalSet):
		return validationFailure("goals", "meeting pods use the fixed meeting goals")
	}
	return err
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
