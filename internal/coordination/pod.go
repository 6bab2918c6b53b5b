package coordination

import (
	"errors"
	"fmt"
	"time"
)

// PodType tags the goal construction rules applied to a pod.
type PodType string

const (
	// PodTypeMeeting pods carry the fixed meeting goal set.
	PodTypeMeeting PodType = "meeting"
	// PodTypeGeneric pods carry owner-defined goals.
	PodTypeGeneric PodType = "generic"
)

// Valid reports whether the type is one of the known pod variants.
func (t PodType) Valid() bool {
	return t == PodTypeMeeting || t == PodTypeGeneric
}

// Status is the lifecycle position of a pod.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusRunning       Status = "running"
	StatusPendingReview Status = "pending_review"
	StatusClosed        Status = "closed"
)

var (
	// ErrPodClosed is returned for any mutation attempted after close.
	ErrPodClosed = errors.New("coordination: pod is closed")
	// ErrNotOwner is returned when an owner-only action is attempted by someone else.
	ErrNotOwner = errors.New("coordination: caller is not the pod owner")
	// ErrNotInvited is returned when joining with an email missing from the invite list.
	ErrNotInvited = errors.New("coordination: email is not invited")
	// ErrInviteesNotJoined is returned when a hunt is started before every invitee joined.
	ErrInviteesNotJoined = errors.New("coordination: not every invitee has joined")
	// ErrCalendarNotConnected is returned when a meeting pod action needs a synced calendar.
	ErrCalendarNotConnected = errors.New("coordination: calendar is not connected")
	// ErrIllegalTransition is returned when the current status does not allow the action.
	ErrIllegalTransition = errors.New("coordination: action not allowed in current status")
	// ErrFixedGoalSet is returned when goals are added to or removed from a meeting pod.
	ErrFixedGoalSet = errors.New("coordination: meeting pods have a fixed goal set")
	// ErrGoalLimit is returned when a generic pod would exceed MaxGenericGoals.
	ErrGoalLimit = errors.New("coordination: goal limit reached")
	// ErrLastGoal is returned when removing the only remaining goal.
	ErrLastGoal = errors.New("coordination: a pod must keep at least one goal")
	// ErrGoalNotFound is returned when a goal id does not belong to the pod.
	ErrGoalNotFound = errors.New("coordination: goal not found")
)

// Pod is the unit of multi-party coordination.
type Pod struct {
	Token              string
	Type               PodType
	Status             Status
	Description        string
	OwnerID            string
	InviteEmails       []string
	InviteJoinedEmails []string
	HuntError          string
	Goals              []Goal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsOwner reports whether userID owns the pod.
func (p Pod) IsOwner(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

// IsClosed reports whether the pod reached its terminal status.
func (p Pod) IsClosed() bool {
	return p.Status == StatusClosed
}

// IsMember reports whether the caller owns the pod or holds an invite to it.
func (p Pod) IsMember(userID, email string) bool {
	return p.IsOwner(userID) || p.IsInvitee(email)
}

// Clone returns a deep copy safe to mutate.
func (p Pod) Clone() Pod {
	out := p
	out.InviteEmails = append([]string(nil), p.InviteEmails...)
	out.InviteJoinedEmails = append([]string(nil), p.InviteJoinedEmails...)
	if p.Goals != nil {
		out.Goals = make([]Goal, len(p.Goals))
		for i, goal := range p.Goals {
			out.Goals[i] = goal.Clone()
		}
	}
	return out
}

// checkMutable applies the guards shared by every owner mutation.
func checkMutable(p Pod, callerID string) error {
	if p.IsClosed() {
		return ErrPodClosed
	}
	if !p.IsOwner(callerID) {
		return ErrNotOwner
	}
	return nil
}

// CheckInviteChange guards AddInvites and RemoveInvite.
func CheckInviteChange(p Pod, callerID string) error {
	return checkMutable(p, callerID)
}

// CheckStartHunt guards the initial hunt trigger and its retry after a transient failure.
func CheckStartHunt(p Pod, callerID string, calendarConnected bool) error {
	if err := checkMutable(p, callerID); err != nil {
		return err
	}
	switch {
	case p.Status == StatusIdle:
	case p.Status == StatusRunning && p.HuntError != "":
	default:
		return ErrIllegalTransition
	}
	return checkHuntPreconditions(p, calendarConnected)
}

// CheckRerunHunt guards the owner-only re-trigger from pending review.
func CheckRerunHunt(p Pod, callerID string, calendarConnected bool) error {
	if err := checkMutable(p, callerID); err != nil {
		return err
	}
	if p.Status != StatusPendingReview {
		return ErrIllegalTransition
	}
	return checkHuntPreconditions(p, calendarConnected)
}

func checkHuntPreconditions(p Pod, calendarConnected bool) error {
	if !p.AllInviteesJoined() {
		return ErrInviteesNotJoined
	}
	if p.Type == PodTypeMeeting && !calendarConnected {
		return ErrCalendarNotConnected
	}
	return nil
}

// CheckEditInstructions guards goal instruction edits.
func CheckEditInstructions(p Pod, callerID string) error {
	if err := checkMutable(p, callerID); err != nil {
		return err
	}
	if p.Status != StatusIdle && p.Status != StatusPendingReview {
		return ErrIllegalTransition
	}
	return nil
}

// CheckAddGoal guards adding a goal to a generic pod.
func CheckAddGoal(p Pod, callerID string) error {
	if err := checkGoalSetChange(p, callerID); err != nil {
		return err
	}
	if len(p.Goals) >= MaxGenericGoals {
		return ErrGoalLimit
	}
	return nil
}

// CheckDeleteGoal guards removing a goal from a generic pod.
func CheckDeleteGoal(p Pod, callerID string) error {
	if err := checkGoalSetChange(p, callerID); err != nil {
		return err
	}
	if len(p.Goals) <= 1 {
		return ErrLastGoal
	}
	return nil
}

func checkGoalSetChange(p Pod, callerID string) error {
	if err := checkMutable(p, callerID); err != nil {
		return err
	}
	if p.Type == PodTypeMeeting {
		return ErrFixedGoalSet
	}
	if p.Status != StatusIdle {
		return ErrIllegalTransition
	}
	return nil
}

// CheckClose guards the terminal close transition.
func CheckClose(p Pod, callerID string) error {
	return checkMutable(p, callerID)
}

// BeginHunt moves the pod into running and clears any previous hunt error.
func (p *Pod) BeginHunt() {
	p.Status = StatusRunning
	p.HuntError = ""
}

// FailHunt records a transient hunt failure. The status is left untouched.
func (p *Pod) FailHunt(message string) {
	if message == "" {
		message = "hunt failed"
	}
	p.HuntError = message
}

// ApplyHuntValues overwrites every goal value from the engine result and reports
// whether every goal now carries a value. A complete fill promotes the pod to pending
// review. A partial fill keeps the values that arrived, leaves the pod running and
// records a hunt error so the owner can retry. Instructions are never touched.
func (p *Pod) ApplyHuntValues(values []GoalValue) bool {
	byID := make(map[string]*string, len(values))
	byName := make(map[string]*string, len(values))
	for _, v := range values {
		if v.GoalID != "" {
			byID[v.GoalID] = v.Value
		}
		if v.Name != "" {
			byName[v.Name] = v.Value
		}
	}
	filled := 0
	for i := range p.Goals {
		goal := &p.Goals[i]
		value, ok := byID[goal.ID]
		if !ok {
			value = byName[goal.Name]
		}
		goal.SetValue(value)
		if goal.Value != nil {
			filled++
		}
	}
	if p.HasResults() {
		p.HuntError = ""
		p.Status = StatusPendingReview
		return true
	}
	p.Status = StatusRunning
	p.FailHunt(fmt.Sprintf("hunt filled %d of %d goals", filled, len(p.Goals)))
	return false
}

// Close moves the pod into its terminal status.
func (p *Pod) Close() {
	p.Status = StatusClosed
}
