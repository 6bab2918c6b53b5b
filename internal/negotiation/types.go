// Package negotiation drives the guest side of a scheduling link: it resolves the
// link, runs the auto-confirm countdown for signed-in viewers and guarantees that a
// session books at most once.
package negotiation

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrConfirmInFlight is returned when a confirm is already being dispatched.
	ErrConfirmInFlight = errors.New("negotiation: confirm already in flight")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("negotiation: session closed")
	// ErrNoSelection is returned when there is no slot to confirm.
	ErrNoSelection = errors.New("negotiation: no slot selected")
	// ErrUnknownSlot is returned when selecting a slot the link did not offer.
	ErrUnknownSlot = errors.New("negotiation: slot not offered by this link")
	// ErrGuestDetails is returned when an anonymous guest omits name or email.
	ErrGuestDetails = errors.New("negotiation: guest name and a valid email are required")
	// ErrLinkNotFound mirrors the server's 404 for unknown links.
	ErrLinkNotFound = errors.New("negotiation: link not found")
	// ErrLinkExpired mirrors the server's 410 for used or expired share links.
	ErrLinkExpired = errors.New("negotiation: link expired")
)

// LinkRef addresses a permanent link by username or a single-use link by token.
type LinkRef struct {
	Username   string
	ShareToken string
}

func (r LinkRef) path() string {
	if r.ShareToken != "" {
		return "/v1/share/" + url.PathEscape(r.ShareToken)
	}
	return "/v1/links/" + url.PathEscape(r.Username)
}

func (r LinkRef) String() string {
	if r.ShareToken != "" {
		return "share:" + r.ShareToken
	}
	return "user:" + r.Username
}

// Slot is one offered window as served by the link endpoint.
type Slot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Duration    int       `json:"duration"`
	MeetingType string    `json:"meeting_type"`
	Label       string    `json:"label,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ReasonToken string    `json:"reason_token,omitempty"`
}

// Owner is the public summary of the link owner.
type Owner struct {
	Name               string `json:"name"`
	Username           string `json:"username"`
	DefaultMeetingType string `json:"default_meeting_type"`
	DefaultDuration    int    `json:"default_duration"`
}

// LinkView is a resolved link.
type LinkView struct {
	Owner            Owner  `json:"owner"`
	SignedIn         bool   `json:"signed_in"`
	PreferredSlot    *Slot  `json:"preferred_slot,omitempty"`
	AlternativeSlots []Slot `json:"alternative_slots,omitempty"`
	AvailableSlots   []Slot `json:"available_slots,omitempty"`
	AlgorithmReason  string `json:"algorithm_reason,omitempty"`
	Message          string `json:"message,omitempty"`
}

// Guest identifies an anonymous booker.
type Guest struct {
	Name  string `validate:"required,max=200"`
	Email string `validate:"required,email"`
}

// ConfirmRequest is the body of a book call.
type ConfirmRequest struct {
	SlotStart      time.Time `json:"slot_start"`
	SlotEnd        time.Time `json:"slot_end"`
	GuestName      string    `json:"guest_name,omitempty"`
	GuestEmail     string    `json:"guest_email,omitempty"`
	MeetingType    string    `json:"meeting_type,omitempty"`
	ReasonToken    string    `json:"reason_token,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// Booking is the committed result of a confirm.
type Booking struct {
	Token         string    `json:"token"`
	OwnerUsername string    `json:"owner_username"`
	GuestName     string    `json:"guest_name"`
	GuestEmail    string    `json:"guest_email"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	MeetingType   string    `json:"meeting_type"`
	Status        string    `json:"status"`
}

// APIError is an error envelope returned by the server.
type APIError struct {
	Status  int               `json:"-"`
	Code    string            `json:"error_code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("negotiation: server answered %d %s: %s", e.Status, e.Code, e.Message)
}

// Is lets callers match link failures with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrLinkNotFound:
		return e.Status == http.StatusNotFound
	case ErrLinkExpired:
		return e.Status == http.StatusGone
	}
	return false
}
