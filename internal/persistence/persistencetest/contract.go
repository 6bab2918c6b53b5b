// Package persistencetest holds the behaviour every persistence.Store must share.
package persistencetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/podcoord/internal/persistence"
)

// OpenFunc returns a fresh, migrated store. Cleanup is the caller's responsibility via t.Cleanup.
type OpenFunc func(t *testing.T) persistence.Store

// ReferenceTime is the fixed instant used by the contract fixtures.
func ReferenceTime() time.Time {
	return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

// Pod returns a generic pod fixture with two goals.
func Pod(token, ownerID string) persistence.Pod {
	base := ReferenceTime()
	return persistence.Pod{
		Token:        token,
		Type:         "generic",
		Status:       "idle",
		Description:  "Team offsite",
		OwnerID:      ownerID,
		InviteEmails: []string{"A@x.com", "b@x.com"},
		Goals: []persistence.Goal{
			{ID: token + "-g1", Name: "venue", Type: "custom", Instructions: "pick a city", Status: "pending", Position: 0},
			{ID: token + "-g2", Name: "date", Type: "custom", Status: "pending", Position: 1},
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// RunStoreContract exercises every repository of a store.
func RunStoreContract(t *testing.T, open OpenFunc) {
	t.Run("pods", func(t *testing.T) { testPods(t, open(t)) })
	t.Run("accounts", func(t *testing.T) { testAccounts(t, open(t)) })
	t.Run("share links", func(t *testing.T) { testShareLinks(t, open(t)) })
	t.Run("bookings", func(t *testing.T) { testBookings(t, open(t)) })
	t.Run("share link bookings", func(t *testing.T) { testShareLinkBookings(t, open(t)) })
}

func testPods(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	pod := Pod("pod-1", "owner")

	if err := store.CreatePod(ctx, pod); err != nil {
		t.Fatalf("CreatePod failed: %v", err)
	}
	if err := store.CreatePod(ctx, pod); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pod, got %v", err)
	}

	fetched, err := store.GetPod(ctx, "pod-1")
	if err != nil {
		t.Fatalf("GetPod failed: %v", err)
	}
	if fetched.Description != "Team offsite" || len(fetched.Goals) != 2 || fetched.Goals[0].Name != "venue" {
		t.Fatalf("unexpected pod: %#v", fetched)
	}
	if fetched.Goals[0].Value != nil || fetched.Goals[0].PodToken != "pod-1" {
		t.Fatalf("unexpected goal: %#v", fetched.Goals[0])
	}
	if !fetched.CreatedAt.Equal(pod.CreatedAt) {
		t.Fatalf("expected created_at %v, got %v", pod.CreatedAt, fetched.CreatedAt)
	}

	fetched.Status = "pending_review"
	fetched.InviteJoinedEmails = []string{"A@x.com"}
	fetched.HuntError = "timeout"
	fetched.Goals[0].Value = strPtr(`{"city":"Lisbon"}`)
	fetched.Goals[0].Status = "completed"
	fetched.Goals = fetched.Goals[:1]
	fetched.UpdatedAt = pod.UpdatedAt.Add(time.Hour)
	if err := store.UpdatePod(ctx, fetched); err != nil {
		t.Fatalf("UpdatePod failed: %v", err)
	}

	updated, err := store.GetPod(ctx, "pod-1")
	if err != nil {
		t.Fatalf("GetPod after update failed: %v", err)
	}
	if updated.Status != "pending_review" || updated.HuntError != "timeout" || len(updated.InviteJoinedEmails) != 1 {
		t.Fatalf("unexpected updated pod: %#v", updated)
	}
	if len(updated.Goals) != 1 || updated.Goals[0].Value == nil || *updated.Goals[0].Value != `{"city":"Lisbon"}` {
		t.Fatalf("expected goal set to be replaced, got %#v", updated.Goals)
	}

	if err := store.UpdatePod(ctx, Pod("missing", "owner")); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing pod, got %v", err)
	}

	other := Pod("pod-2", "someone")
	other.InviteEmails = []string{"owner@example.com"}
	other.CreatedAt = pod.CreatedAt.Add(time.Minute)
	if err := store.CreatePod(ctx, other); err != nil {
		t.Fatalf("CreatePod failed: %v", err)
	}
	if err := store.CreatePod(ctx, Pod("pod-3", "stranger")); err != nil {
		t.Fatalf("CreatePod failed: %v", err)
	}

	pods, err := store.ListPodsForMember(ctx, "owner", "OWNER@example.com")
	if err != nil {
		t.Fatalf("ListPodsForMember failed: %v", err)
	}
	if len(pods) != 2 || pods[0].Token != "pod-2" || pods[1].Token != "pod-1" {
		t.Fatalf("expected newest-first pods owned or invited, got %d", len(pods))
	}

	invited, err := store.ListPodsForMember(ctx, "", "a@X.com")
	if err != nil {
		t.Fatalf("ListPodsForMember by email failed: %v", err)
	}
	if len(invited) != 2 {
		t.Fatalf("expected case-insensitive invite match on two pods, got %d", len(invited))
	}

	if err := store.DeletePod(ctx, "pod-1"); err != nil {
		t.Fatalf("DeletePod failed: %v", err)
	}
	if _, err := store.GetPod(ctx, "pod-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeletePod(ctx, "pod-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func testAccounts(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	base := ReferenceTime()
	account := persistence.Account{
		ID:                 "owner",
		Email:              "owner@example.com",
		Username:           "olivia",
		Name:               "Olivia",
		CalendarConnected:  true,
		DefaultMeetingType: "virtual",
		DefaultDuration:    30,
		CreatedAt:          base,
		UpdatedAt:          base,
	}
	if err := store.UpsertAccount(ctx, account); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	account.Name = "Olivia P."
	account.CalendarConnected = false
	account.UpdatedAt = base.Add(time.Hour)
	if err := store.UpsertAccount(ctx, account); err != nil {
		t.Fatalf("UpsertAccount update failed: %v", err)
	}

	byID, err := store.GetAccount(ctx, "owner")
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if byID.Name != "Olivia P." || byID.CalendarConnected || byID.DefaultDuration != 30 {
		t.Fatalf("unexpected account: %#v", byID)
	}

	if _, err := store.GetAccountByUsername(ctx, "OLIVIA"); err != nil {
		t.Fatalf("GetAccountByUsername failed: %v", err)
	}
	if _, err := store.GetAccountByEmail(ctx, "Owner@Example.com"); err != nil {
		t.Fatalf("GetAccountByEmail failed: %v", err)
	}
	if _, err := store.GetAccount(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	clash := account
	clash.ID = "other"
	clash.Email = "other@example.com"
	if err := store.UpsertAccount(ctx, clash); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
}

func testShareLinks(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	base := ReferenceTime()
	expires := base.Add(24 * time.Hour)
	link := persistence.ShareLink{Token: "share-1", OwnerID: "owner", CreatedAt: base, ExpiresAt: &expires, OriginBooking: strPtr("booking-1")}

	if err := store.CreateShareLink(ctx, link); err != nil {
		t.Fatalf("CreateShareLink failed: %v", err)
	}
	fetched, err := store.GetShareLink(ctx, "share-1")
	if err != nil {
		t.Fatalf("GetShareLink failed: %v", err)
	}
	if fetched.UsedAt != nil || fetched.ExpiresAt == nil || !fetched.ExpiresAt.Equal(expires) || *fetched.OriginBooking != "booking-1" {
		t.Fatalf("unexpected link: %#v", fetched)
	}

	if err := store.CreateShareLink(ctx, link); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for a duplicate token, got %v", err)
	}
	if _, err := store.GetShareLink(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testBookings(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	base := ReferenceTime()
	booking := persistence.Booking{
		Token:          "booking-1",
		OwnerID:        "owner",
		OwnerUsername:  "olivia",
		GuestName:      "Guest",
		GuestEmail:     "guest@example.com",
		StartAt:        base.Add(24 * time.Hour),
		EndAt:          base.Add(24*time.Hour + 30*time.Minute),
		MeetingType:    "virtual",
		Status:         "confirmed",
		LinkIdentifier: "user:olivia",
		IdempotencyKey: strPtr("key-1"),
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	if err := store.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	dup := booking
	dup.Token = "booking-2"
	if err := store.CreateBooking(ctx, dup); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for reused idempotency key, got %v", err)
	}

	found, err := store.FindBookingByIdempotencyKey(ctx, "user:olivia", "key-1")
	if err != nil || found.Token != "booking-1" {
		t.Fatalf("FindBookingByIdempotencyKey failed: %v %#v", err, found)
	}
	if _, err := store.FindBookingByIdempotencyKey(ctx, "share:x", "key-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected keys to be scoped per link, got %v", err)
	}

	booking.Status = "canceled"
	booking.Notes = "see you"
	booking.UpdatedAt = base.Add(time.Hour)
	if err := store.UpdateBooking(ctx, booking); err != nil {
		t.Fatalf("UpdateBooking failed: %v", err)
	}
	fetched, err := store.GetBooking(ctx, "booking-1")
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if fetched.Status != "canceled" || fetched.Notes != "see you" || fetched.GuestID != nil {
		t.Fatalf("unexpected booking: %#v", fetched)
	}
	if !fetched.StartAt.Equal(booking.StartAt) {
		t.Fatalf("expected start %v, got %v", booking.StartAt, fetched.StartAt)
	}

	if _, err := store.GetBooking(ctx, "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testShareLinkBookings(t *testing.T, store persistence.Store) {
	ctx := context.Background()
	base := ReferenceTime()
	if err := store.CreateShareLink(ctx, persistence.ShareLink{Token: "share-1", OwnerID: "owner", CreatedAt: base}); err != nil {
		t.Fatalf("CreateShareLink failed: %v", err)
	}
	existing := persistence.Booking{
		Token:          "booking-1",
		OwnerID:        "owner",
		OwnerUsername:  "olivia",
		GuestName:      "Guest",
		GuestEmail:     "guest@example.com",
		StartAt:        base.Add(24 * time.Hour),
		EndAt:          base.Add(24*time.Hour + 30*time.Minute),
		MeetingType:    "virtual",
		Status:         "confirmed",
		LinkIdentifier: "user:olivia",
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	if err := store.CreateBooking(ctx, existing); err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	clash := existing
	clash.LinkIdentifier = "share:share-1"
	clash.CreatedAt = base.Add(time.Minute)
	if err := store.CreateShareLinkBooking(ctx, "share-1", clash); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for a clashing booking token, got %v", err)
	}
	link, err := store.GetShareLink(ctx, "share-1")
	if err != nil {
		t.Fatalf("GetShareLink failed: %v", err)
	}
	if link.UsedAt != nil {
		t.Fatalf("a failed booking write must leave the link unused, got %v", link.UsedAt)
	}

	booking := clash
	booking.Token = "booking-2"
	if err := store.CreateShareLinkBooking(ctx, "share-1", booking); err != nil {
		t.Fatalf("CreateShareLinkBooking failed: %v", err)
	}
	link, _ = store.GetShareLink(ctx, "share-1")
	if link.UsedAt == nil || !link.UsedAt.Equal(booking.CreatedAt) {
		t.Fatalf("expected link used at booking time, got %v", link.UsedAt)
	}
	if _, err := store.GetBooking(ctx, "booking-2"); err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}

	again := booking
	again.Token = "booking-3"
	if err := store.CreateShareLinkBooking(ctx, "share-1", again); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected ErrConflict for a used link, got %v", err)
	}
	if _, err := store.GetBooking(ctx, "booking-3"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("booking on a used link must not be stored, got %v", err)
	}
	if err := store.CreateShareLinkBooking(ctx, "missing", again); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown link, got %v", err)
	}
}
