package application

import (
	"time"

	"github.com/example/podcoord/internal/coordination"
)

// Principal represents the caller of a service method. A zero UserID is an anonymous viewer.
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// SignedIn reports whether the principal carries a verified identity.
func (p Principal) SignedIn() bool {
	return p.UserID != ""
}

// MeetingType is the format preference attached to accounts, slots and bookings.
type MeetingType string

const (
	MeetingTypeVirtual  MeetingType = "virtual"
	MeetingTypePhysical MeetingType = "physical"
	MeetingTypeEither   MeetingType = "either"
)

// Account is the directory record of a person who owns links or pods.
type Account struct {
	ID                 string
	Email              string
	Username           string
	Name               string
	CalendarConnected  bool
	DefaultMeetingType MeetingType
	DefaultDuration    int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PodInput captures caller provided pod fields.
type PodInput struct {
	Type         string      `json:"type" validate:"required,oneof=meeting generic"`
	Description  string      `json:"description" validate:"required,max=500"`
	InviteEmails []string    `json:"invite_emails"`
	Goals        []GoalInput `json:"goals"`
}

// GoalInput captures a generic pod goal definition.
type GoalInput struct {
	Name         string `json:"name" validate:"required,max=120"`
	Type         string `json:"type" validate:"max=40"`
	Instructions string `json:"instructions" validate:"max=2000"`
}

// CreatePodParams wraps the data required to create a pod.
type CreatePodParams struct {
	Principal Principal
	Input     PodInput
}

// InviteView is what an invited person sees when opening the pod invite link.
type InviteView struct {
	Pod       coordination.Pod
	OwnerName string
	Joined    bool
	Invited   bool
}

// Slot is one offered meeting window.
type Slot struct {
	Start       time.Time
	End         time.Time
	Duration    int
	MeetingType MeetingType
	Label       string
	Reason      string
	ReasonToken string
}

// Matches reports whether the slot covers exactly the requested window.
func (s Slot) Matches(start, end time.Time) bool {
	return s.Start.Equal(start) && s.End.Equal(end)
}

// SlotQuery asks the ranker for the windows an owner can offer to a viewer.
type SlotQuery struct {
	OwnerID     string
	ViewerID    string
	Duration    int
	MeetingType MeetingType
}

// SlotRanking is the ranker response: ordered slots plus its explanation.
type SlotRanking struct {
	Slots           []Slot
	AlgorithmReason string
	Message         string
}

// LinkRef addresses either a permanent link (username) or a share link (token).
type LinkRef struct {
	Username   string
	ShareToken string
}

// IsShare reports whether the reference targets a single-use share link.
func (r LinkRef) IsShare() bool {
	return r.ShareToken != ""
}

// Identifier is the stable key of the link used for idempotency bookkeeping.
func (r LinkRef) Identifier() string {
	if r.IsShare() {
		return "share:" + r.ShareToken
	}
	return "user:" + r.Username
}

// OwnerSummary is the public part of the link owner's account.
type OwnerSummary struct {
	Name               string
	Username           string
	DefaultMeetingType MeetingType
	DefaultDuration    int
}

// LinkView is the resolution of a scheduling link for a specific viewer.
type LinkView struct {
	Owner            OwnerSummary
	SignedIn         bool
	PreferredSlot    *Slot
	AlternativeSlots []Slot
	AvailableSlots   []Slot
	AlgorithmReason  string
	Message          string
}

// OfferedSlots returns every slot the view exposes regardless of viewer kind.
func (v LinkView) OfferedSlots() []Slot {
	if !v.SignedIn {
		return v.AvailableSlots
	}
	var out []Slot
	if v.PreferredSlot != nil {
		out = append(out, *v.PreferredSlot)
	}
	return append(out, v.AlternativeSlots...)
}

// ShareLink is a single-use scheduling link.
type ShareLink struct {
	Token         string
	OwnerID       string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	UsedAt        *time.Time
	OriginBooking string
}

// Usable reports whether the link can still be resolved at the given instant.
func (l ShareLink) Usable(now time.Time) bool {
	if l.UsedAt != nil {
		return false
	}
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// BookingStatus is the sub-lifecycle of a committed booking.
type BookingStatus string

const (
	BookingConfirmed           BookingStatus = "confirmed"
	BookingRescheduleRequested BookingStatus = "reschedule_requested"
	BookingCanceled            BookingStatus = "canceled"
)

// Booking is a committed meeting between a link owner and a guest.
type Booking struct {
	Token            string
	OwnerID          string
	OwnerUsername    string
	GuestID          string
	GuestName        string
	GuestEmail       string
	StartAt          time.Time
	EndAt            time.Time
	MeetingType      MeetingType
	Status           BookingStatus
	Notes            string
	OwnerSlotReason  string
	BookerSlotReason string
	LinkIdentifier   string
	IdempotencyKey   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConfirmInput is the guest's request to book a slot.
type ConfirmInput struct {
	SlotStart      time.Time `json:"slot_start" validate:"required"`
	SlotEnd        time.Time `json:"slot_end" validate:"required"`
	GuestName      string    `json:"guest_name" validate:"max=200"`
	GuestEmail     string    `json:"guest_email" validate:"omitempty,email"`
	MeetingType    string    `json:"meeting_type" validate:"omitempty,oneof=virtual physical either"`
	ReasonToken    string    `json:"reason_token"`
	IdempotencyKey string    `json:"idempotency_key" validate:"max=128"`
}

// BookingRole is the viewer's relation to a booking.
type BookingRole string

const (
	RoleOwner     BookingRole = "owner"
	RoleGuest     BookingRole = "guest"
	RoleAnonymous BookingRole = "anonymous"
)

// BookingView pairs a booking with the viewer's role.
type BookingView struct {
	Booking       Booking
	Role          BookingRole
	ShowSignupCTA bool
}

// RescheduleResult carries the fresh share link issued by a reschedule request.
type RescheduleResult struct {
	Booking Booking
	Link    ShareLink
	Message string
}

// MaxNotesLength bounds booking notes.
const MaxNotesLength = 2000
