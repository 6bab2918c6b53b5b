package application

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func confirmedBooking() Booking {
	return Booking{
		Token:         "booking-1",
		OwnerID:       "owner",
		OwnerUsername: "olivia",
		GuestID:       inviteeA.UserID,
		GuestName:     "A",
		GuestEmail:    inviteeA.Email,
		StartAt:       slotBase,
		EndAt:         slotBase.Add(30 * time.Minute),
		Status:        BookingConfirmed,
	}
}

func newBookingFixture(bookings ...Booking) (*BookingService, *bookingRepoStub, *shareLinkRepoStub, *notifierStub) {
	repo := newBookingRepoStub(bookings...)
	links := newShareLinkRepoStub()
	notifier := &notifierStub{}
	svc := NewBookingService(repo, links, newAccountStub(linkOwner), notifier, sequentialIDs(), fixedNow)
	return svc, repo, links, notifier
}

func TestBookingService_GetBookingRoles(t *testing.T) {
	anonymousGuest := confirmedBooking()
	anonymousGuest.Token = "booking-2"
	anonymousGuest.GuestID = ""
	anonymousGuest.GuestEmail = "Guest@Example.com"

	svc, _, _, _ := newBookingFixture(confirmedBooking(), anonymousGuest)
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		viewer Principal
		role   BookingRole
		cta    bool
	}{
		{name: "owner", token: "booking-1", viewer: owner, role: RoleOwner},
		{name: "guest by id", token: "booking-1", viewer: inviteeA, role: RoleGuest},
		{name: "guest by email", token: "booking-2", viewer: Principal{UserID: "late-signup", Email: "guest@example.com"}, role: RoleGuest},
		{name: "other signed-in user", token: "booking-1", viewer: stranger, role: RoleAnonymous},
		{name: "anonymous", token: "booking-1", viewer: Principal{}, role: RoleAnonymous, cta: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := svc.GetBooking(ctx, tt.viewer, tt.token)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if view.Role != tt.role || view.ShowSignupCTA != tt.cta {
				t.Fatalf("got role %s cta %v, want %s %v", view.Role, view.ShowSignupCTA, tt.role, tt.cta)
			}
		})
	}

	if _, err := svc.GetBooking(ctx, owner, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingService_Reschedule(t *testing.T) {
	svc, repo, links, notifier := newBookingFixture(confirmedBooking())
	ctx := context.Background()

	if _, err := svc.Reschedule(ctx, stranger, "booking-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-party, got %v", err)
	}

	result, err := svc.Reschedule(ctx, inviteeA, "booking-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.Status != BookingRescheduleRequested || result.Message == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Link.OwnerID != "owner" || result.Link.OriginBooking != "booking-1" {
		t.Fatalf("expected link for the booking owner, got %+v", result.Link)
	}
	if _, err := links.GetShareLink(ctx, result.Link.Token); err != nil {
		t.Fatalf("expected share link to be stored: %v", err)
	}
	if stored, _ := repo.GetBooking(ctx, "booking-1"); !stored.StartAt.Equal(slotBase) {
		t.Fatalf("reschedule must not move the booking")
	}
	if len(notifier.reschedules) != 1 {
		t.Fatalf("expected reschedule notification")
	}
}

func TestBookingService_CancelIsTerminal(t *testing.T) {
	svc, _, _, notifier := newBookingFixture(confirmedBooking())
	ctx := context.Background()

	booking, err := svc.Cancel(ctx, owner, "booking-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != BookingCanceled || len(notifier.canceled) != 1 {
		t.Fatalf("expected canceled booking with notification, got %+v", booking)
	}

	if _, err := svc.Cancel(ctx, owner, "booking-1"); !errors.Is(err, ErrBookingCanceled) {
		t.Fatalf("expected ErrBookingCanceled, got %v", err)
	}
	if _, err := svc.Reschedule(ctx, inviteeA, "booking-1"); !errors.Is(err, ErrBookingCanceled) {
		t.Fatalf("expected ErrBookingCanceled for reschedule, got %v", err)
	}
	if _, err := svc.UpdateNotes(ctx, inviteeA, "booking-1", "late note"); !errors.Is(err, ErrBookingCanceled) {
		t.Fatalf("expected ErrBookingCanceled for notes, got %v", err)
	}
}

func TestBookingService_UpdateNotes(t *testing.T) {
	svc, _, _, _ := newBookingFixture(confirmedBooking())
	ctx := context.Background()

	booking, err := svc.UpdateNotes(ctx, inviteeA, "booking-1", "bring the slides")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Notes != "bring the slides" {
		t.Fatalf("unexpected notes %q", booking.Notes)
	}

	_, err = svc.UpdateNotes(ctx, owner, "booking-1", strings.Repeat("x", MaxNotesLength+1))
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["notes"] == "" {
		t.Fatalf("expected notes validation error, got %v", err)
	}

	if _, err := svc.UpdateNotes(ctx, Principal{}, "booking-1", "anon"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for anonymous viewer, got %v", err)
	}
}
