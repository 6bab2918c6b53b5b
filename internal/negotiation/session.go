package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/example/podcoord/internal/logging"
)

// DefaultCountdown is the number of one-second ticks before the preferred slot is booked.
const DefaultCountdown = 60

var guestValidator = validator.New()

// Confirmer books a slot on a link.
type Confirmer interface {
	Confirm(ctx context.Context, ref LinkRef, req ConfirmRequest) (Booking, error)
}

// Options tune a session. The zero value gives the standard one-minute countdown.
type Options struct {
	Countdown      int
	Interval       time.Duration
	NewTicker      NewTickerFunc
	IdempotencyKey string
	// OnTick observes the remaining ticks after each countdown step.
	OnTick func(remaining int)
	Logger *slog.Logger
}

// Session is one resolution of a link. Signed-in viewers get an auto-confirm
// countdown on the preferred slot; anonymous viewers pick from the flat list.
// A session books at most once.
type Session struct {
	confirmer      Confirmer
	ref            LinkRef
	view           LinkView
	countdown      int
	interval       time.Duration
	newTicker      NewTickerFunc
	idempotencyKey string
	onTick         func(int)
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// restart asks the loop to drop its ticker and start a fresh interval
	// unless the countdown is paused.
	restart chan struct{}

	// inFlight is claimed before dispatch and kept after a successful booking.
	inFlight atomic.Bool

	mu        sync.Mutex
	remaining int
	paused    bool
	preferred *Slot
	selected  *Slot
	booking   *Booking
	lastErr   error
	closed    bool

	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewSession starts a negotiation over a resolved link. The countdown goroutine,
// if any, lives until the session books or Close is called.
func NewSession(ctx context.Context, confirmer Confirmer, ref LinkRef, view LinkView, opts Options) *Session {
	if opts.Countdown <= 0 {
		opts.Countdown = DefaultCountdown
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = newRealTicker
	}
	if opts.IdempotencyKey == "" {
		opts.IdempotencyKey = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		confirmer:      confirmer,
		ref:            ref,
		view:           view,
		countdown:      opts.Countdown,
		interval:       opts.Interval,
		newTicker:      opts.NewTicker,
		idempotencyKey: opts.IdempotencyKey,
		onTick:         opts.OnTick,
		logger:         opts.Logger.With(logging.Module("negotiation"), slog.String("link", ref.String())),
		ctx:            sessionCtx,
		cancel:         cancel,
		remaining:      opts.Countdown,
		restart:        make(chan struct{}, 1),
		done:           make(chan struct{}),
		loopDone:       make(chan struct{}),
	}

	if !view.SignedIn {
		if len(view.AvailableSlots) > 0 {
			first := view.AvailableSlots[0]
			s.selected = &first
		}
		close(s.loopDone)
		return s
	}

	if view.PreferredSlot != nil {
		preferred := *view.PreferredSlot
		s.preferred = &preferred
	}
	go s.run(s.newTicker(s.interval))
	return s
}

func (s *Session) run(t Ticker) {
	defer close(s.loopDone)
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	for {
		// A nil channel blocks, so a paused loop only wakes on control events.
		var ticks <-chan time.Time
		if t != nil {
			ticks = t.C()
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.done:
			return
		case <-s.restart:
			if t != nil {
				t.Stop()
				t = nil
			}
			if !s.Paused() {
				t = s.newTicker(s.interval)
			}
		case <-ticks:
			slot, fire := s.tick()
			if !fire {
				continue
			}
			if _, err := s.confirm(s.ctx, slot, Guest{}); err != nil && !errors.Is(err, ErrConfirmInFlight) {
				s.logger.Warn("auto-confirm failed", logging.Err(err))
			}
		}
	}
}

// tick advances the countdown by one step and reports whether it just expired.
func (s *Session) tick() (Slot, bool) {
	s.mu.Lock()
	if s.closed || s.booking != nil || s.paused || s.preferred == nil || s.remaining <= 0 || s.inFlight.Load() {
		s.mu.Unlock()
		return Slot{}, false
	}
	s.remaining--
	remaining := s.remaining
	slot := *s.preferred
	s.mu.Unlock()

	if s.onTick != nil {
		s.onTick(remaining)
	}
	return slot, remaining == 0
}

// Toggle pauses or resumes the countdown and returns whether it is now paused.
// Resuming continues from the paused value with a full interval before the next step.
func (s *Session) Toggle() bool {
	s.mu.Lock()
	if !s.view.SignedIn {
		s.mu.Unlock()
		return false
	}
	s.paused = !s.paused
	paused := s.paused
	s.mu.Unlock()

	s.restartTicker()
	return paused
}

// SetPreferred replaces the preferred slot. A different slot restarts the countdown.
func (s *Session) SetPreferred(slot Slot) {
	s.mu.Lock()
	reset := s.preferred == nil || !s.preferred.Start.Equal(slot.Start)
	if reset {
		s.remaining = s.countdown
		s.paused = false
	}
	s.preferred = &slot
	s.mu.Unlock()

	if reset {
		s.restartTicker()
	}
}

// restartTicker never blocks; pending requests coalesce since the loop reads
// the paused flag when it handles one.
func (s *Session) restartTicker() {
	select {
	case s.restart <- struct{}{}:
	default:
	}
}

// Select picks one of the anonymous slots by start time.
func (s *Session) Select(start time.Time) error {
	for _, slot := range s.view.AvailableSlots {
		if slot.Start.Equal(start) {
			s.mu.Lock()
			chosen := slot
			s.selected = &chosen
			s.mu.Unlock()
			return nil
		}
	}
	return ErrUnknownSlot
}

// ChooseAlternative books one of the alternatives at once, bypassing the countdown.
func (s *Session) ChooseAlternative(ctx context.Context, slot Slot) (Booking, error) {
	offered := false
	for _, alt := range s.view.AlternativeSlots {
		if alt.Start.Equal(slot.Start) && alt.End.Equal(slot.End) {
			offered = true
			slot = alt
			break
		}
	}
	if !offered {
		return Booking{}, ErrUnknownSlot
	}

	s.mu.Lock()
	wasPaused := s.paused
	s.paused = true
	s.mu.Unlock()
	s.restartTicker()

	booking, err := s.confirm(ctx, slot, Guest{})
	if err != nil {
		s.mu.Lock()
		s.paused = wasPaused
		s.mu.Unlock()
		s.restartTicker()
		return Booking{}, err
	}
	return booking, nil
}

// Confirm books the current choice: the preferred slot for signed-in viewers, the
// selected slot plus guest details for anonymous ones.
func (s *Session) Confirm(ctx context.Context, guest Guest) (Booking, error) {
	s.mu.Lock()
	var slot *Slot
	if s.view.SignedIn {
		slot = s.preferred
	} else {
		slot = s.selected
	}
	s.mu.Unlock()

	if slot == nil {
		return Booking{}, ErrNoSelection
	}
	if !s.view.SignedIn {
		guest.Name = strings.TrimSpace(guest.Name)
		guest.Email = strings.TrimSpace(guest.Email)
		if err := guestValidator.Struct(guest); err != nil {
			return Booking{}, ErrGuestDetails
		}
	} else {
		guest = Guest{}
	}
	return s.confirm(ctx, *slot, guest)
}

func (s *Session) confirm(ctx context.Context, slot Slot, guest Guest) (Booking, error) {
	if s.isClosed() {
		return Booking{}, ErrSessionClosed
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		if booking, ok := s.Booking(); ok {
			return booking, nil
		}
		return Booking{}, ErrConfirmInFlight
	}
	if s.isClosed() {
		s.inFlight.Store(false)
		return Booking{}, ErrSessionClosed
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	booking, err := s.confirmer.Confirm(callCtx, s.ref, ConfirmRequest{
		SlotStart:      slot.Start,
		SlotEnd:        slot.End,
		GuestName:      guest.Name,
		GuestEmail:     guest.Email,
		MeetingType:    slot.MeetingType,
		ReasonToken:    slot.ReasonToken,
		IdempotencyKey: s.idempotencyKey,
	})
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		s.inFlight.Store(false)
		return Booking{}, err
	}

	s.mu.Lock()
	s.booking = &booking
	s.lastErr = nil
	s.mu.Unlock()
	close(s.done)
	s.logger.Info("booking confirmed", slog.String("booking_token", booking.Token))
	return booking, nil
}

// Close stops the countdown and waits for it to exit. No confirm is issued afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		<-s.loopDone
	})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once the session has booked.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Booking returns the committed booking, if any.
func (s *Session) Booking() (Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booking == nil {
		return Booking{}, false
	}
	return *s.booking, true
}

// Err returns the last confirm failure.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Remaining returns the countdown ticks left.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Paused reports whether the countdown is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Selected returns the anonymous viewer's current choice.
func (s *Session) Selected() (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Slot{}, false
	}
	return *s.selected, true
}

// Preferred returns the slot the countdown will book.
func (s *Session) Preferred() (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preferred == nil {
		return Slot{}, false
	}
	return *s.preferred, true
}

// View returns the link resolution the session was started from.
func (s *Session) View() LinkView {
	return s.view
}
