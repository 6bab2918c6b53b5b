package testfixtures

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/podcoord/internal/persistence"
)

var (
	accountCounter uint64
	podCounter     uint64
	bookingCounter uint64
)

var referenceTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Account fixtures -----------------------------

// AccountOption configures the generated account.
type AccountOption func(*persistence.Account)

// NewAccount returns a deterministic account with a connected calendar.
func NewAccount(opts ...AccountOption) persistence.Account {
	idx := atomic.AddUint64(&accountCounter, 1)
	id := fmt.Sprintf("account-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	account := persistence.Account{
		ID:                 id,
		Email:              id + "@example.com",
		Username:           id,
		Name:               fmt.Sprintf("Account %03d", idx),
		CalendarConnected:  true,
		DefaultMeetingType: "virtual",
		DefaultDuration:    30,
		CreatedAt:          created,
		UpdatedAt:          created,
	}
	for _, opt := range opts {
		opt(&account)
	}
	return account
}

// WithAccountID overrides the generated id.
func WithAccountID(id string) AccountOption {
	return func(a *persistence.Account) { a.ID = id }
}

// WithAccountEmail overrides the generated email address.
func WithAccountEmail(email string) AccountOption {
	return func(a *persistence.Account) { a.Email = email }
}

// WithUsername overrides the public link username.
func WithUsername(username string) AccountOption {
	return func(a *persistence.Account) { a.Username = username }
}

// WithAccountName overrides the display name.
func WithAccountName(name string) AccountOption {
	return func(a *persistence.Account) { a.Name = name }
}

// WithoutCalendar marks the account's calendar as disconnected.
func WithoutCalendar() AccountOption {
	return func(a *persistence.Account) { a.CalendarConnected = false }
}

// ------------------------------- Pod fixtures -------------------------------

// PodOption configures the generated pod.
type PodOption func(*persistence.Pod)

// NewPod returns an idle generic pod owned by ownerID with a single pending goal.
func NewPod(ownerID string, opts ...PodOption) persistence.Pod {
	idx := atomic.AddUint64(&podCounter, 1)
	token := fmt.Sprintf("pod-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	pod := persistence.Pod{
		Token:       token,
		Type:        "generic",
		Status:      "idle",
		Description: fmt.Sprintf("Pod %03d", idx),
		OwnerID:     ownerID,
		Goals: []persistence.Goal{
			{ID: token + "-goal-1", PodToken: token, Name: "venue", Type: "text", Status: "pending"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&pod)
	}
	return pod
}

// WithPodToken overrides the generated token, re-keying the goals.
func WithPodToken(token string) PodOption {
	return func(p *persistence.Pod) {
		p.Token = token
		for i := range p.Goals {
			p.Goals[i].PodToken = token
		}
	}
}

// WithPodStatus overrides the lifecycle status.
func WithPodStatus(status string) PodOption {
	return func(p *persistence.Pod) { p.Status = status }
}

// WithInvites sets the invite list; joined lists the invitees who already joined.
func WithInvites(invites []string, joined ...string) PodOption {
	return func(p *persistence.Pod) {
		p.InviteEmails = append([]string(nil), invites...)
		p.InviteJoinedEmails = append([]string(nil), joined...)
	}
}

// WithGoals replaces the goal set. Goal tokens and positions are filled in.
func WithGoals(goals ...persistence.Goal) PodOption {
	return func(p *persistence.Pod) {
		p.Goals = make([]persistence.Goal, len(goals))
		for i, goal := range goals {
			goal.PodToken = p.Token
			goal.Position = i
			if goal.Status == "" {
				goal.Status = "pending"
			}
			p.Goals[i] = goal
		}
	}
}

// ----------------------------- Booking fixtures -----------------------------

// BookingOption configures the generated booking.
type BookingOption func(*persistence.Booking)

// NewBooking returns a confirmed thirty minute booking on owner's link, one day after the reference time.
func NewBooking(owner persistence.Account, opts ...BookingOption) persistence.Booking {
	idx := atomic.AddUint64(&bookingCounter, 1)
	start := referenceTime.Add(24*time.Hour + time.Duration(idx)*time.Hour)
	booking := persistence.Booking{
		Token:          fmt.Sprintf("booking-%03d", idx),
		OwnerID:        owner.ID,
		OwnerUsername:  owner.Username,
		GuestName:      "Guest",
		GuestEmail:     fmt.Sprintf("guest-%03d@example.com", idx),
		StartAt:        start,
		EndAt:          start.Add(30 * time.Minute),
		MeetingType:    "virtual",
		Status:         "confirmed",
		LinkIdentifier: "user:" + owner.Username,
		CreatedAt:      referenceTime,
		UpdatedAt:      referenceTime,
	}
	for _, opt := range opts {
		opt(&booking)
	}
	return booking
}

// WithGuest records a signed-in guest.
func WithGuest(guest persistence.Account) BookingOption {
	return func(b *persistence.Booking) {
		id := guest.ID
		b.GuestID = &id
		b.GuestName = guest.Name
		b.GuestEmail = guest.Email
	}
}

// WithBookingStatus overrides the booking status.
func WithBookingStatus(status string) BookingOption {
	return func(b *persistence.Booking) { b.Status = status }
}

// ---------------------------------- Seeding ----------------------------------

// SeedAccounts stores the accounts or fails the test.
func SeedAccounts(tb testing.TB, repo persistence.AccountRepository, accounts ...persistence.Account) {
	tb.Helper()
	for _, account := range accounts {
		if err := repo.UpsertAccount(context.Background(), account); err != nil {
			tb.Fatalf("seed account %s: %v", account.ID, err)
		}
	}
}

// SeedPods stores the pods or fails the test.
func SeedPods(tb testing.TB, repo persistence.PodRepository, pods ...persistence.Pod) {
	tb.Helper()
	for _, pod := range pods {
		if err := repo.CreatePod(context.Background(), pod); err != nil {
			tb.Fatalf("seed pod %s: %v", pod.Token, err)
		}
	}
}

// SeedBookings stores the bookings or fails the test.
func SeedBookings(tb testing.TB, repo persistence.BookingRepository, bookings ...persistence.Booking) {
	tb.Helper()
	for _, booking := range bookings {
		if err := repo.CreateBooking(context.Background(), booking); err != nil {
			tb.Fatalf("seed booking %s: %v", booking.Token, err)
		}
	}
}
