package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
	"github.com/example/podcoord/internal/persistence"
	"github.com/example/podcoord/internal/testfixtures"
)

func TestPodRepositoryAdapter_RoundTrip(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	owner := testfixtures.NewAccount()
	testfixtures.SeedAccounts(t, store, owner)
	repo := newPodRepositoryAdapter(store)
	ctx := context.Background()

	created := testfixtures.ReferenceTime()
	pod := coordination.Pod{
		Token:        "pod-adapter",
		Type:         coordination.PodTypeGeneric,
		Status:       coordination.StatusIdle,
		Description:  "Dinner",
		OwnerID:      owner.ID,
		InviteEmails: []string{"ana@example.com"},
		Goals: []coordination.Goal{
			{ID: "g1", Name: "venue", Type: "text", Status: coordination.GoalStatusPending},
			{ID: "g2", Name: "date", Type: "date", Status: coordination.GoalStatusPending},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	stored, err := repo.CreatePod(ctx, pod)
	if err != nil {
		t.Fatalf("CreatePod returned error: %v", err)
	}
	if len(stored.Goals) != 2 || stored.Goals[1].Position != 1 || stored.Goals[1].PodToken != pod.Token {
		t.Fatalf("unexpected goals after create: %+v", stored.Goals)
	}

	value := `"Blue Bottle"`
	stored.Goals[0].SetValue(&value)
	stored.Status = coordination.StatusRunning
	stored.InviteJoinedEmails = []string{"ana@example.com"}
	updated, err := repo.UpdatePod(ctx, stored)
	if err != nil {
		t.Fatalf("UpdatePod returned error: %v", err)
	}
	if updated.Goals[0].Value == nil || *updated.Goals[0].Value != value {
		t.Fatalf("goal value not persisted: %+v", updated.Goals[0])
	}
	if updated.Goals[0].Status != coordination.GoalStatusCompleted || updated.Goals[1].Value != nil {
		t.Fatalf("unexpected goal state: %+v", updated.Goals)
	}
	if len(updated.InviteJoinedEmails) != 1 || updated.Status != coordination.StatusRunning {
		t.Fatalf("unexpected pod state: %+v", updated)
	}

	listed, err := repo.ListPodsForMember(ctx, "someone-else", "ANA@example.com")
	if err != nil {
		t.Fatalf("ListPodsForMember returned error: %v", err)
	}
	if len(listed) != 1 || listed[0].Token != pod.Token {
		t.Fatalf("invitee must see the pod, got %+v", listed)
	}

	if err := repo.DeletePod(ctx, pod.Token); err != nil {
		t.Fatalf("DeletePod returned error: %v", err)
	}
	if _, err := repo.GetPod(ctx, pod.Token); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestBookingRepositoryAdapter_OptionalFields(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	owner := testfixtures.NewAccount(testfixtures.WithUsername("olivia"))
	testfixtures.SeedAccounts(t, store, owner)
	repo := newBookingRepositoryAdapter(store)
	ctx := context.Background()

	start := testfixtures.ReferenceTime().Add(48 * time.Hour)
	anonymous := application.Booking{
		Token:          "b-anon",
		OwnerID:        owner.ID,
		OwnerUsername:  owner.Username,
		GuestName:      "Gus",
		GuestEmail:     "gus@example.com",
		StartAt:        start,
		EndAt:          start.Add(30 * time.Minute),
		MeetingType:    application.MeetingTypeVirtual,
		Status:         application.BookingConfirmed,
		LinkIdentifier: "user:olivia",
		CreatedAt:      start,
		UpdatedAt:      start,
	}
	stored, err := repo.CreateBooking(ctx, anonymous)
	if err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}
	if stored.GuestID != "" || stored.IdempotencyKey != "" {
		t.Fatalf("empty optional fields must round-trip as empty: %+v", stored)
	}

	keyed := anonymous
	keyed.Token = "b-keyed"
	keyed.GuestID = owner.ID
	keyed.IdempotencyKey = "key-1"
	keyed.StartAt = start.Add(time.Hour)
	keyed.EndAt = keyed.StartAt.Add(30 * time.Minute)
	if _, err := repo.CreateBooking(ctx, keyed); err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}

	found, err := repo.FindBookingByIdempotencyKey(ctx, "user:olivia", "key-1")
	if err != nil {
		t.Fatalf("FindBookingByIdempotencyKey returned error: %v", err)
	}
	if found.Token != "b-keyed" || found.GuestID != owner.ID {
		t.Fatalf("unexpected booking %+v", found)
	}

	found.Status = application.BookingCanceled
	found.Notes = "conflict"
	updated, err := repo.UpdateBooking(ctx, found)
	if err != nil {
		t.Fatalf("UpdateBooking returned error: %v", err)
	}
	if updated.Status != application.BookingCanceled || updated.Notes != "conflict" {
		t.Fatalf("update not persisted: %+v", updated)
	}
}

func TestShareLinkRepositoryAdapter_SingleUse(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	owner := testfixtures.NewAccount()
	testfixtures.SeedAccounts(t, store, owner)
	repo := newShareLinkRepositoryAdapter(store)
	ctx := context.Background()

	now := testfixtures.ReferenceTime()
	expires := now.Add(7 * 24 * time.Hour)
	link, err := repo.CreateShareLink(ctx, application.ShareLink{
		Token:     "share-1",
		OwnerID:   owner.ID,
		CreatedAt: now,
		ExpiresAt: &expires,
	})
	if err != nil {
		t.Fatalf("CreateShareLink returned error: %v", err)
	}
	if !link.Usable(now) || link.OriginBooking != "" {
		t.Fatalf("fresh link must be usable: %+v", link)
	}

	bookings := newBookingRepositoryAdapter(store)
	first := application.Booking{
		Token:          "b-share",
		OwnerID:        owner.ID,
		OwnerUsername:  owner.Username,
		GuestName:      "Gus",
		GuestEmail:     "gus@example.com",
		StartAt:        now.Add(48 * time.Hour),
		EndAt:          now.Add(48*time.Hour + 30*time.Minute),
		MeetingType:    application.MeetingTypeVirtual,
		Status:         application.BookingConfirmed,
		LinkIdentifier: "share:share-1",
		CreatedAt:      now.Add(time.Minute),
		UpdatedAt:      now.Add(time.Minute),
	}
	if _, err := bookings.CreateBooking(ctx, first); err != nil {
		t.Fatalf("CreateBooking returned error: %v", err)
	}

	// A clashing booking token rolls back the link consumption.
	if _, err := bookings.CreateShareLinkBooking(ctx, "share-1", first); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected conflict for duplicate booking, got %v", err)
	}
	if link, err := repo.GetShareLink(ctx, "share-1"); err != nil || !link.Usable(now) {
		t.Fatalf("link must stay usable after a failed booking: %+v, %v", link, err)
	}

	second := first
	second.Token = "b-share-2"
	if _, err := bookings.CreateShareLinkBooking(ctx, "share-1", second); err != nil {
		t.Fatalf("CreateShareLinkBooking returned error: %v", err)
	}
	used, err := repo.GetShareLink(ctx, "share-1")
	if err != nil {
		t.Fatalf("GetShareLink returned error: %v", err)
	}
	if used.Usable(now.Add(2 * time.Minute)) {
		t.Fatalf("used link must not be usable")
	}

	third := first
	third.Token = "b-share-3"
	if _, err := bookings.CreateShareLinkBooking(ctx, "share-1", third); !errors.Is(err, persistence.ErrConflict) {
		t.Fatalf("expected conflict on second use, got %v", err)
	}
	if _, err := bookings.GetBooking(ctx, "b-share-3"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("booking on a used link must not be stored, got %v", err)
	}
}

func TestAccountDirectoryAdapter(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	account := testfixtures.NewAccount(testfixtures.WithUsername("olivia"), testfixtures.WithoutCalendar())
	testfixtures.SeedAccounts(t, store, account)
	directory := newAccountDirectoryAdapter(store)

	got, err := directory.GetAccountByUsername(context.Background(), "olivia")
	if err != nil {
		t.Fatalf("GetAccountByUsername returned error: %v", err)
	}
	if got.ID != account.ID || got.CalendarConnected || got.DefaultMeetingType != application.MeetingTypeVirtual {
		t.Fatalf("unexpected account %+v", got)
	}
	if _, err := directory.GetAccount(context.Background(), "missing"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type fixedRanker struct {
	slots []application.Slot
}

func (r fixedRanker) RankSlots(context.Context, application.SlotQuery) (application.SlotRanking, error) {
	return application.SlotRanking{Slots: r.slots, AlgorithmReason: "fixed"}, nil
}

func TestLinkServiceOverSQLite_ShareLinkExpiryAndIdempotency(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	owner := testfixtures.NewAccount(testfixtures.WithUsername("olivia"))
	testfixtures.SeedAccounts(t, store, owner)

	factory := testfixtures.NewServiceFactory(testfixtures.WithIDGenerator(testfixtures.NewIDGenerator("tok")))
	start := factory.Clock.Now().Add(24 * time.Hour)
	slot := application.Slot{Start: start, End: start.Add(30 * time.Minute), Duration: 30, MeetingType: application.MeetingTypeVirtual}

	service := factory.NewLinkService(testfixtures.LinkServiceDeps{
		Accounts: newAccountDirectoryAdapter(store),
		Links:    newShareLinkRepositoryAdapter(store),
		Bookings: newBookingRepositoryAdapter(store),
		Ranker:   fixedRanker{slots: []application.Slot{slot}},
		Config:   application.LinkServiceConfig{ShareLinkTTL: 7 * 24 * time.Hour},
	})
	ctx := context.Background()
	ownerPrincipal := application.Principal{UserID: owner.ID, Email: owner.Email}

	expiring, err := service.IssueShareLink(ctx, ownerPrincipal)
	if err != nil {
		t.Fatalf("IssueShareLink returned error: %v", err)
	}
	if expiring.Token != "tok-1" || expiring.ExpiresAt == nil {
		t.Fatalf("unexpected share link %+v", expiring)
	}
	factory.Clock.AdvancePast(*expiring.ExpiresAt)
	if _, err := service.Resolve(ctx, application.Principal{}, application.LinkRef{ShareToken: expiring.Token}); !errors.Is(err, application.ErrLinkExpired) {
		t.Fatalf("expected expired link, got %v", err)
	}

	input := application.ConfirmInput{
		SlotStart:      slot.Start,
		SlotEnd:        slot.End,
		GuestName:      "Gus",
		GuestEmail:     "gus@example.com",
		IdempotencyKey: "session-1",
	}
	ref := application.LinkRef{Username: "olivia"}
	first, err := service.Confirm(ctx, application.Principal{}, ref, input)
	if err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	retried, err := service.Confirm(ctx, application.Principal{}, ref, input)
	if err != nil {
		t.Fatalf("retried Confirm returned error: %v", err)
	}
	if retried.Token != first.Token {
		t.Fatalf("retry must return the existing booking, got %q and %q", first.Token, retried.Token)
	}
	if issued := factory.IDGenerator.Issued(); issued != 2 {
		t.Fatalf("expected one share link and one booking token, got %d", issued)
	}
}
