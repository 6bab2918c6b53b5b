package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/podcoord/internal/coordination"
	"github.com/example/podcoord/internal/logging"
)

const rescheduleMessage = "A new scheduling link has been issued. Pick a new time to replace this booking."

// BookingService manages committed bookings after confirmation.
type BookingService struct {
	bookings     BookingRepository
	links        ShareLinkRepository
	accounts     AccountDirectory
	notifier     Notifier
	idGenerator  func() string
	now          func() time.Time
	shareLinkTTL time.Duration
	logger       *slog.Logger
	locks        *keyedMutex
}

// NewBookingService constructs a booking service with the provided dependencies.
func NewBookingService(bookings BookingRepository, links ShareLinkRepository, accounts AccountDirectory, notifier Notifier, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, links, accounts, notifier, idGenerator, now, 0, nil)
}

// NewBookingServiceWithLogger constructs a booking service with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, links ShareLinkRepository, accounts AccountDirectory, notifier Notifier, idGenerator func() string, now func() time.Time, shareLinkTTL time.Duration, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if shareLinkTTL <= 0 {
		shareLinkTTL = 7 * 24 * time.Hour
	}
	return &BookingService{
		bookings:     bookings,
		links:        links,
		accounts:     accounts,
		notifier:     notifier,
		idGenerator:  idGenerator,
		now:          now,
		shareLinkTTL: shareLinkTTL,
		logger:       defaultLogger(logger),
		locks:        newKeyedMutex(),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

func (s *BookingService) ready() error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}
	if s.bookings == nil {
		return fmt.Errorf("booking repository not configured")
	}
	return nil
}

// GetBooking returns the booking together with the viewer's role. Anyone holding
// the token may view it; anonymous viewers are invited to sign up.
func (s *BookingService) GetBooking(ctx context.Context, viewer Principal, token string) (BookingView, error) {
	if err := s.ready(); err != nil {
		return BookingView{}, err
	}
	booking, err := s.bookings.GetBooking(ctx, token)
	if err != nil {
		return BookingView{}, mapRepoError(err)
	}
	return BookingView{
		Booking:       booking,
		Role:          bookingRole(booking, viewer),
		ShowSignupCTA: !viewer.SignedIn(),
	}, nil
}

// Reschedule issues a fresh single-use link for the booking owner's calendar and
// marks the booking as awaiting a new time. It does not book anything itself.
func (s *BookingService) Reschedule(ctx context.Context, viewer Principal, token string) (result RescheduleResult, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if s.links == nil {
		err = fmt.Errorf("share link repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "Reschedule", "viewer_id", viewer.UserID, "booking_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to request reschedule", "reschedule requested", "share_token", result.Link.Token)
	}()

	result.Booking, err = s.mutate(ctx, viewer, token, func(booking *Booking) error {
		link, err := issueShareLink(ctx, s.links, s.idGenerator, s.now(), s.shareLinkTTL, booking.OwnerID, booking.Token)
		if err != nil {
			return err
		}
		result.Link = link
		booking.Status = BookingRescheduleRequested
		return nil
	})
	if err != nil {
		return
	}
	result.Message = rescheduleMessage

	s.notify(ctx, logger, result.Booking, func(owner Account) error {
		return s.notifier.RescheduleRequested(ctx, result.Booking, owner, result.Link)
	})
	return
}

// Cancel moves the booking into its terminal status and notifies both sides.
func (s *BookingService) Cancel(ctx context.Context, viewer Principal, token string) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Cancel", "viewer_id", viewer.UserID, "booking_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to cancel booking", "booking canceled")
	}()

	booking, err = s.mutate(ctx, viewer, token, func(b *Booking) error {
		b.Status = BookingCanceled
		return nil
	})
	if err != nil {
		return
	}

	s.notify(ctx, logger, booking, func(owner Account) error {
		return s.notifier.BookingCanceled(ctx, booking, owner)
	})
	return
}

// UpdateNotes replaces the free-form notes of a live booking.
func (s *BookingService) UpdateNotes(ctx context.Context, viewer Principal, token, notes string) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateNotes", "viewer_id", viewer.UserID, "booking_token", token)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update notes", "notes updated")
	}()

	booking, err = s.mutate(ctx, viewer, token, func(b *Booking) error {
		if len([]rune(notes)) > MaxNotesLength {
			return validationFailure("notes", fmt.Sprintf("notes must be at most %d characters", MaxNotesLength))
		}
		b.Notes = notes
		return nil
	})
	return
}

// mutate applies fn to a live booking the viewer takes part in.
func (s *BookingService) mutate(ctx context.Context, viewer Principal, token string, fn func(*Booking) error) (Booking, error) {
	unlock := s.locks.lock(token)
	defer unlock()

	booking, err := s.bookings.GetBooking(ctx, token)
	if err != nil {
		return Booking{}, mapRepoError(err)
	}
	if bookingRole(booking, viewer) == RoleAnonymous {
		return Booking{}, ErrUnauthorized
	}
	if booking.Status == BookingCanceled {
		return Booking{}, ErrBookingCanceled
	}

	if err := fn(&booking); err != nil {
		return Booking{}, err
	}
	booking.UpdatedAt = s.now()

	updated, err := s.bookings.UpdateBooking(ctx, booking)
	if err != nil {
		return Booking{}, mapRepoError(err)
	}
	return updated, nil
}

func (s *BookingService) notify(ctx context.Context, logger *slog.Logger, booking Booking, send func(Account) error) {
	if s.notifier == nil {
		return
	}
	owner := Account{ID: booking.OwnerID, Username: booking.OwnerUsername}
	if s.accounts != nil {
		if account, err := s.accounts.GetAccount(ctx, booking.OwnerID); err == nil {
			owner = account
		}
	}
	if err := send(owner); err != nil {
		logger.WarnContext(ctx, "booking notification failed", logging.Err(err))
	}
}

func bookingRole(booking Booking, viewer Principal) BookingRole {
	if !viewer.SignedIn() {
		return RoleAnonymous
	}
	switch {
	case viewer.UserID == booking.OwnerID:
		return RoleOwner
	case booking.GuestID != "" && viewer.UserID == booking.GuestID:
		return RoleGuest
	case booking.GuestEmail != "" && coordination.NormalizeEmail(viewer.Email) == coordination.NormalizeEmail(booking.GuestEmail):
		return RoleGuest
	}
	return RoleAnonymous
}
