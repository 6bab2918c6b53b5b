package persistence

import "time"

// Pod is the stored form of a coordination pod. Goals are persisted alongside it.
type Pod struct {
	Token              string
	Type               string
	Status             string
	Description        string
	OwnerID            string
	InviteEmails       []string
	InviteJoinedEmails []string
	HuntError          string
	Goals              []Goal
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Goal is a pod sub-objective. Value is nil until the hunt engine fills it.
type Goal struct {
	ID           string
	PodToken     string
	Name         string
	Type         string
	Instructions string
	Value        *string
	Status       string
	Position     int
}

// Account is a directory entry for a link or pod owner.
type Account struct {
	ID                 string
	Email              string
	Username           string
	Name               string
	CalendarConnected  bool
	DefaultMeetingType string
	DefaultDuration    int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ShareLink is a single-use scheduling link.
type ShareLink struct {
	Token         string
	OwnerID       string
	CreatedAt     time.Time
	ExpiresAt     *time.Time
	UsedAt        *time.Time
	OriginBooking *string
}

// Booking is a committed meeting.
type Booking struct {
	Token            string
	OwnerID          string
	OwnerUsername    string
	GuestID          *string
	GuestName        string
	GuestEmail       string
	StartAt          time.Time
	EndAt            time.Time
	MeetingType      string
	Status           string
	Notes            string
	OwnerSlotReason  string
	BookerSlotReason string
	LinkIdentifier   string
	IdempotencyKey   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
