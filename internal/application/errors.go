package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/podcoord/internal/coordination"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist or is not visible to the caller.
	ErrNotFound = errors.New("application: not found")
	// ErrHuntTransientFailure is returned when the hunt engine could not produce a result; the call may be retried.
	ErrHuntTransientFailure = errors.New("application: hunt engine failed, retry later")
	// ErrRankingUnavailable is returned when the slot ranker cannot be reached.
	ErrRankingUnavailable = errors.New("application: slot ranking unavailable")
	// ErrLinkNotFound is returned for unknown usernames or share tokens.
	ErrLinkNotFound = errors.New("application: scheduling link not found")
	// ErrLinkExpired is returned for share links that were used or have expired.
	ErrLinkExpired = errors.New("application: scheduling link expired")
	// ErrBookingCanceled is returned for changes to a canceled booking.
	ErrBookingCanceled = errors.New("application: booking is canceled")

	ErrPodClosed            = coordination.ErrPodClosed
	ErrNotOwner             = coordination.ErrNotOwner
	ErrNotInvited           = coordination.ErrNotInvited
	ErrInviteesNotJoined    = coordination.ErrInviteesNotJoined
	ErrCalendarNotConnected = coordination.ErrCalendarNotConnected
	ErrIllegalTransition    = coordination.ErrIllegalTransition
)

// ValidationError maps request fields to the first problem found with each.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error names the offending fields in a stable order.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; !exists {
		v.FieldErrors[field] = message
	}
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func validationFailure(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}
