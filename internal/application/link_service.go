package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/podcoord/internal/logging"
	"github.com/example/podcoord/internal/persistence"
)

const noSlotsMessage = "No slots available right now."

// SlotRanker is the external collaborator that ranks an owner's free windows.
type SlotRanker interface {
	RankSlots(ctx context.Context, query SlotQuery) (SlotRanking, error)
}

// ShareLinkRepository stores single-use scheduling links.
type ShareLinkRepository interface {
	CreateShareLink(ctx context.Context, link ShareLink) (ShareLink, error)
	GetShareLink(ctx context.Context, token string) (ShareLink, error)
}

// BookingRepository stores committed bookings.
// CreateShareLinkBooking must consume the share link and store the booking as one
// unit: when it fails the link stays usable. A link that was already used fails with
// persistence.ErrConflict.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	CreateShareLinkBooking(ctx context.Context, shareToken string, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, token string) (Booking, error)
	UpdateBooking(ctx context.Context, booking Booking) (Booking, error)
	FindBookingByIdempotencyKey(ctx context.Context, linkIdentifier, key string) (Booking, error)
}

// Notifier tells both sides of a booking about changes. Delivery failures are logged, never returned to callers.
type Notifier interface {
	BookingConfirmed(ctx context.Context, booking Booking, owner Account) error
	BookingCanceled(ctx context.Context, booking Booking, owner Account) error
	RescheduleRequested(ctx context.Context, booking Booking, owner Account, link ShareLink) error
}

// LinkServiceConfig tunes link behaviour.
type LinkServiceConfig struct {
	ShareLinkTTL time.Duration
	SlotCacheTTL time.Duration
}

// LinkService resolves scheduling links and commits bookings from them.
type LinkService struct {
	accounts    AccountDirectory
	links       ShareLinkRepository
	bookings    BookingRepository
	ranker      SlotRanker
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	cfg         LinkServiceConfig
	cache       *slotCache
	locks       *keyedMutex
}

// NewLinkService constructs a link service with the provided dependencies.
func NewLinkService(accounts AccountDirectory, links ShareLinkRepository, bookings BookingRepository, ranker SlotRanker, notifier Notifier, idGenerator func() string, now func() time.Time) *LinkService {
	return NewLinkServiceWithLogger(accounts, links, bookings, ranker, notifier, idGenerator, now, LinkServiceConfig{}, nil)
}

// NewLinkServiceWithLogger constructs a link service with explicit configuration and logger.
func NewLinkServiceWithLogger(accounts AccountDirectory, links ShareLinkRepository, bookings BookingRepository, ranker SlotRanker, notifier Notifier, idGenerator func() string, now func() time.Time, cfg LinkServiceConfig, logger *slog.Logger) *LinkService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if cfg.ShareLinkTTL <= 0 {
		cfg.ShareLinkTTL = 7 * 24 * time.Hour
	}
	return &LinkService{
		accounts:    accounts,
		links:       links,
		bookings:    bookings,
		ranker:      ranker,
		notifier:    notifier,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		cfg:         cfg,
		cache:       newSlotCache(cfg.SlotCacheTTL, 0, now),
		locks:       newKeyedMutex(),
	}
}

func (s *LinkService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "LinkService", operation, attrs...)
}

func (s *LinkService) ready() error {
	if s == nil {
		return fmt.Errorf("LinkService is nil")
	}
	if s.accounts == nil || s.links == nil || s.bookings == nil {
		return fmt.Errorf("link repositories not configured")
	}
	return nil
}

// Resolve returns the slots the viewer may book through ref. It never mutates state.
func (s *LinkService) Resolve(ctx context.Context, viewer Principal, ref LinkRef) (view LinkView, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Resolve", "viewer_id", viewer.UserID, "link", ref.Identifier())
	defer func() {
		logOutcome(ctx, logger, err, "failed to resolve link", "link resolved", "slot_count", len(view.OfferedSlots()))
	}()

	var owner Account
	owner, _, err = s.lookup(ctx, ref)
	if err != nil {
		return
	}
	view, err = s.view(ctx, owner, viewer)
	return
}

// Confirm books one of the currently offered slots. The server decides whether the
// requested slot is still on offer; a share link is consumed by the first success.
func (s *LinkService) Confirm(ctx context.Context, viewer Principal, ref LinkRef, input ConfirmInput) (booking Booking, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "Confirm", "viewer_id", viewer.UserID, "link", ref.Identifier())
	defer func() {
		logOutcome(ctx, logger, err, "failed to confirm booking", "booking confirmed", "booking_token", booking.Token)
	}()

	if vErr := validateConfirmInput(viewer, input); vErr.HasErrors() {
		err = vErr
		return
	}

	unlock := s.locks.lock(ref.Identifier())
	defer unlock()

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		existing, findErr := s.bookings.FindBookingByIdempotencyKey(ctx, ref.Identifier(), key)
		switch {
		case findErr == nil:
			booking = existing
			return
		case !errors.Is(mapRepoError(findErr), ErrNotFound):
			err = findErr
			return
		}
	}

	var owner Account
	owner, _, err = s.lookup(ctx, ref)
	if err != nil {
		return
	}
	if viewer.SignedIn() && viewer.UserID == owner.ID {
		err = validationFailure("link", "you cannot book your own link")
		return
	}

	var view LinkView
	view, err = s.view(ctx, owner, viewer)
	if err != nil {
		return
	}
	var chosen *Slot
	for _, slot := range view.OfferedSlots() {
		if slot.Matches(input.SlotStart, input.SlotEnd) {
			slot := slot
			chosen = &slot
			break
		}
	}
	if chosen == nil {
		err = validationFailure("slot", "slot is no longer available")
		return
	}

	now := s.now()
	booking = Booking{
		Token:            s.idGenerator(),
		OwnerID:          owner.ID,
		OwnerUsername:    owner.Username,
		StartAt:          chosen.Start,
		EndAt:            chosen.End,
		MeetingType:      pickMeetingType(input.MeetingType, chosen.MeetingType, owner.DefaultMeetingType),
		Status:           BookingConfirmed,
		OwnerSlotReason:  view.AlgorithmReason,
		BookerSlotReason: chosen.Reason,
		LinkIdentifier:   ref.Identifier(),
		IdempotencyKey:   key,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if viewer.SignedIn() {
		booking.GuestID = viewer.UserID
		booking.GuestName = viewer.Name
		booking.GuestEmail = viewer.Email
	} else {
		booking.GuestName = strings.TrimSpace(input.GuestName)
		booking.GuestEmail = strings.TrimSpace(input.GuestEmail)
	}

	if ref.IsShare() {
		booking, err = s.bookings.CreateShareLinkBooking(ctx, ref.ShareToken, booking)
		if err != nil {
			err = mapLinkError(err)
			return
		}
	} else {
		booking, err = s.bookings.CreateBooking(ctx, booking)
		if err != nil {
			err = mapRepoError(err)
			return
		}
	}
	s.cache.InvalidateOwner(owner.ID)

	if s.notifier != nil {
		if notifyErr := s.notifier.BookingConfirmed(ctx, booking, owner); notifyErr != nil {
			logger.WarnContext(ctx, "booking notification failed", logging.Err(notifyErr))
		}
	}
	return
}

// IssueShareLink creates a fresh single-use link for the principal's calendar.
func (s *LinkService) IssueShareLink(ctx context.Context, principal Principal) (link ShareLink, err error) {
	if err = s.ready(); err != nil {
		return
	}
	if !principal.SignedIn() {
		err = ErrUnauthorized
		return
	}

	logger := s.loggerWith(ctx, "IssueShareLink", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to issue share link", "share link issued")
	}()

	link, err = issueShareLink(ctx, s.links, s.idGenerator, s.now(), s.cfg.ShareLinkTTL, principal.UserID, "")
	return
}

func issueShareLink(ctx context.Context, links ShareLinkRepository, idGenerator func() string, now time.Time, ttl time.Duration, ownerID, origin string) (ShareLink, error) {
	expires := now.Add(ttl)
	link := ShareLink{
		Token:         idGenerator(),
		OwnerID:       ownerID,
		CreatedAt:     now,
		ExpiresAt:     &expires,
		OriginBooking: origin,
	}
	created, err := links.CreateShareLink(ctx, link)
	if err != nil {
		return ShareLink{}, mapRepoError(err)
	}
	return created, nil
}

// lookup resolves a link reference into its owner account.
func (s *LinkService) lookup(ctx context.Context, ref LinkRef) (Account, *ShareLink, error) {
	if !ref.IsShare() {
		if strings.TrimSpace(ref.Username) == "" {
			return Account{}, nil, ErrLinkNotFound
		}
		owner, err := s.accounts.GetAccountByUsername(ctx, ref.Username)
		if err != nil {
			return Account{}, nil, mapLinkError(err)
		}
		return owner, nil, nil
	}

	link, err := s.links.GetShareLink(ctx, ref.ShareToken)
	if err != nil {
		return Account{}, nil, mapLinkError(err)
	}
	if !link.Usable(s.now()) {
		return Account{}, nil, ErrLinkExpired
	}
	owner, err := s.accounts.GetAccount(ctx, link.OwnerID)
	if err != nil {
		return Account{}, nil, mapLinkError(err)
	}
	return owner, &link, nil
}

func (s *LinkService) view(ctx context.Context, owner Account, viewer Principal) (LinkView, error) {
	query := SlotQuery{
		OwnerID:     owner.ID,
		ViewerID:    viewer.UserID,
		Duration:    owner.DefaultDuration,
		MeetingType: owner.DefaultMeetingType,
	}

	ranking, ok := s.cache.Get(slotCacheKey(query))
	if !ok {
		if s.ranker == nil {
			return LinkView{}, ErrRankingUnavailable
		}
		var err error
		ranking, err = s.ranker.RankSlots(ctx, query)
		if err != nil {
			return LinkView{}, fmt.Errorf("%w: %s", ErrRankingUnavailable, err.Error())
		}
		s.cache.Store(slotCacheKey(query), ranking)
	}

	view := LinkView{
		Owner: OwnerSummary{
			Name:               owner.Name,
			Username:           owner.Username,
			DefaultMeetingType: owner.DefaultMeetingType,
			DefaultDuration:    owner.DefaultDuration,
		},
		SignedIn:        viewer.SignedIn(),
		AlgorithmReason: ranking.AlgorithmReason,
		Message:         ranking.Message,
	}
	switch {
	case len(ranking.Slots) == 0:
		if view.Message == "" {
			view.Message = noSlotsMessage
		}
	case view.SignedIn:
		preferred := ranking.Slots[0]
		view.PreferredSlot = &preferred
		view.AlternativeSlots = ranking.Slots[1:]
	default:
		view.AvailableSlots = ranking.Slots
	}
	return view, nil
}

func validateConfirmInput(viewer Principal, input ConfirmInput) *ValidationError {
	vErr := validateStruct(input)
	if !input.SlotStart.IsZero() && !input.SlotEnd.IsZero() && !input.SlotEnd.After(input.SlotStart) {
		vErr.add("slot_end", "slot_end must be after slot_start")
	}
	if !viewer.SignedIn() {
		if strings.TrimSpace(input.GuestName) == "" {
			vErr.add("guest_name", "guest_name is required")
		}
		if !validEmail(strings.TrimSpace(input.GuestEmail)) {
			vErr.add("guest_email", "guest_email must be a valid email address")
		}
	}
	return vErr
}

func pickMeetingType(requested string, slot, fallback MeetingType) MeetingType {
	if requested != "" {
		return MeetingType(requested)
	}
	if slot != "" {
		return slot
	}
	if fallback != "" {
		return fallback
	}
	return MeetingTypeVirtual
}

func mapLinkError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, ErrNotFound):
		return ErrLinkNotFound
	case errors.Is(err, persistence.ErrConflict):
		return ErrLinkExpired
	}
	return err
}
