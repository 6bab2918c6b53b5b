package negotiation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func slotAt(hours int) Slot {
	start := base.Add(time.Duration(hours) * time.Hour)
	return Slot{Start: start, End: start.Add(30 * time.Minute), Duration: 30, MeetingType: "virtual", ReasonToken: "r"}
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time)}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

// advance delivers n ticks, each one only after the loop picked up the previous one.
func (f *fakeTicker) advance(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case f.ch <- base:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d was not consumed", i+1)
		}
	}
}

// tickerFactory records every ticker a session starts; ticks go to the newest one.
type tickerFactory struct {
	mu        sync.Mutex
	tickers   []*fakeTicker
	intervals []time.Duration
}

func (f *tickerFactory) newTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ticker := newFakeTicker()
	f.tickers = append(f.tickers, ticker)
	f.intervals = append(f.intervals, d)
	return ticker
}

func (f *tickerFactory) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *tickerFactory) current() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

func (f *tickerFactory) advance(t *testing.T, n int) {
	t.Helper()
	f.current().advance(t, n)
}

// waitStarted blocks until the session has started at least n tickers.
func (f *tickerFactory) waitStarted(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.started() >= n }, 2*time.Second, time.Millisecond)
}

// tickUntil offers ticks to the newest ticker until cond holds. Control events
// may replace the ticker while it runs.
func (f *tickerFactory) tickUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case f.current().ch <- base:
		case <-time.After(10 * time.Millisecond):
		}
		return cond()
	}, 2*time.Second, time.Millisecond, msg)
}

func assertNotConsumed(t *testing.T, ticker *fakeTicker, msg string) {
	t.Helper()
	select {
	case ticker.ch <- base:
		t.Fatal(msg)
	case <-time.After(20 * time.Millisecond):
	}
}

type confirmerStub struct {
	calls    atomic.Int32
	release  chan struct{}
	failures atomic.Int32

	mu       sync.Mutex
	requests []ConfirmRequest
}

func (c *confirmerStub) Confirm(ctx context.Context, _ LinkRef, req ConfirmRequest) (Booking, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return Booking{}, ctx.Err()
		}
	}
	if c.failures.Load() > 0 {
		c.failures.Add(-1)
		return Booking{}, errors.New("slot is no longer available")
	}
	return Booking{Token: "booking-1", StartAt: req.SlotStart, EndAt: req.SlotEnd, Status: "confirmed"}, nil
}

func (c *confirmerStub) lastRequest() ConfirmRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}

func signedInView() LinkView {
	preferred := slotAt(1)
	return LinkView{
		SignedIn:         true,
		PreferredSlot:    &preferred,
		AlternativeSlots: []Slot{slotAt(2), slotAt(3)},
	}
}

func newSignedInSession(t *testing.T, confirmer Confirmer) (*Session, *tickerFactory) {
	t.Helper()
	tickers := &tickerFactory{}
	s := NewSession(context.Background(), confirmer, LinkRef{Username: "olivia"}, signedInView(), Options{
		NewTicker:      tickers.newTicker,
		IdempotencyKey: "key-1",
	})
	t.Cleanup(s.Close)
	return s, tickers
}

func waitBooked(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSessionAutoConfirmsPreferredOnExpiry(t *testing.T) {
	confirmer := &confirmerStub{}
	s, ticker := newSignedInSession(t, confirmer)

	ticker.advance(t, DefaultCountdown-1)
	require.Eventually(t, func() bool { return s.Remaining() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, confirmer.calls.Load(), "nothing is booked before expiry")

	ticker.advance(t, 1)
	waitBooked(t, s)

	assert.EqualValues(t, 1, confirmer.calls.Load())
	req := confirmer.lastRequest()
	assert.True(t, req.SlotStart.Equal(slotAt(1).Start))
	assert.Equal(t, "key-1", req.IdempotencyKey)
	assert.Empty(t, req.GuestEmail)

	booking, ok := s.Booking()
	require.True(t, ok)
	assert.Equal(t, "booking-1", booking.Token)
}

func TestSessionToggleResumesFromPausedValue(t *testing.T) {
	confirmer := &confirmerStub{}
	s, ticker := newSignedInSession(t, confirmer)

	ticker.advance(t, 30)
	require.Eventually(t, func() bool { return s.Remaining() == 30 }, time.Second, time.Millisecond)

	paused := ticker.current()
	require.True(t, s.Toggle())
	require.Eventually(t, paused.stopped.Load, time.Second, time.Millisecond)
	assertNotConsumed(t, paused, "paused countdown must not consume ticks")
	assert.Equal(t, 30, s.Remaining(), "paused countdown must not move")

	require.False(t, s.Toggle())
	assert.Equal(t, 30, s.Remaining())

	ticker.waitStarted(t, 2)
	ticker.advance(t, 30)
	waitBooked(t, s)
	assert.EqualValues(t, 1, confirmer.calls.Load())
}

func TestSessionResumeStartsFreshInterval(t *testing.T) {
	tickers := &tickerFactory{}
	s := NewSession(context.Background(), &confirmerStub{}, LinkRef{Username: "olivia"}, signedInView(), Options{
		Interval:  250 * time.Millisecond,
		NewTicker: tickers.newTicker,
	})
	t.Cleanup(s.Close)

	first := tickers.current()
	first.advance(t, 5)
	require.True(t, s.Toggle())
	require.Eventually(t, first.stopped.Load, time.Second, time.Millisecond)
	assert.Equal(t, 1, tickers.started(), "a paused countdown has no running ticker")

	require.False(t, s.Toggle())
	tickers.waitStarted(t, 2)
	resumed := tickers.current()
	assert.NotSame(t, first, resumed)
	assert.False(t, resumed.stopped.Load())
	assertNotConsumed(t, first, "the ticker from before the pause must stay stopped")

	tickers.mu.Lock()
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, tickers.intervals)
	tickers.mu.Unlock()

	resumed.advance(t, 1)
	require.Eventually(t, func() bool { return s.Remaining() == DefaultCountdown-6 }, time.Second, time.Millisecond)
}

func TestSessionSetPreferredResetsOnlyOnNewSlot(t *testing.T) {
	s, ticker := newSignedInSession(t, &confirmerStub{})

	ticker.advance(t, 20)
	require.Eventually(t, func() bool { return s.Remaining() == 40 }, time.Second, time.Millisecond)

	s.SetPreferred(slotAt(1))
	assert.Equal(t, 40, s.Remaining(), "same slot keeps the countdown")

	s.Toggle()
	s.SetPreferred(slotAt(5))
	assert.Equal(t, DefaultCountdown, s.Remaining())
	assert.False(t, s.Paused(), "a new preferred slot restarts the countdown")
	ticker.waitStarted(t, 2)
	ticker.tickUntil(t, func() bool { return s.Remaining() < DefaultCountdown }, "restarted countdown must run")

	preferred, ok := s.Preferred()
	require.True(t, ok)
	assert.True(t, preferred.Start.Equal(slotAt(5).Start))
}

func TestSessionManualAndTimerConfirmBookOnce(t *testing.T) {
	confirmer := &confirmerStub{release: make(chan struct{})}
	s, ticker := newSignedInSession(t, confirmer)

	ticker.advance(t, DefaultCountdown-1)
	require.Eventually(t, func() bool { return s.Remaining() == 1 }, time.Second, time.Millisecond)

	manual := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background(), Guest{})
		manual <- err
	}()
	require.Eventually(t, func() bool { return confirmer.calls.Load() == 1 }, time.Second, time.Millisecond)

	// The final tick lands while the manual confirm is still in flight.
	ticker.advance(t, 1)
	_, err := s.ChooseAlternative(context.Background(), slotAt(2))
	assert.ErrorIs(t, err, ErrConfirmInFlight)

	close(confirmer.release)
	require.NoError(t, <-manual)
	waitBooked(t, s)

	booking, err := s.Confirm(context.Background(), Guest{})
	require.NoError(t, err)
	assert.Equal(t, "booking-1", booking.Token, "later confirms return the existing booking")
	assert.EqualValues(t, 1, confirmer.calls.Load())
}

func TestSessionConcurrentConfirmsDispatchOnce(t *testing.T) {
	confirmer := &confirmerStub{}
	s, _ := newSignedInSession(t, confirmer)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Confirm(context.Background(), Guest{})
			if err != nil {
				assert.ErrorIs(t, err, ErrConfirmInFlight)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, confirmer.calls.Load())
	_, ok := s.Booking()
	assert.True(t, ok)
}

func TestSessionChooseAlternativeBypassesCountdown(t *testing.T) {
	confirmer := &confirmerStub{}
	s, _ := newSignedInSession(t, confirmer)

	_, err := s.ChooseAlternative(context.Background(), slotAt(9))
	require.ErrorIs(t, err, ErrUnknownSlot)

	booking, err := s.ChooseAlternative(context.Background(), slotAt(3))
	require.NoError(t, err)
	assert.True(t, booking.StartAt.Equal(slotAt(3).Start))
	assert.Equal(t, DefaultCountdown, s.Remaining())
	waitBooked(t, s)
}

func TestSessionFailedAlternativeRestoresPauseState(t *testing.T) {
	confirmer := &confirmerStub{}
	confirmer.failures.Store(1)
	s, ticker := newSignedInSession(t, confirmer)

	_, err := s.ChooseAlternative(context.Background(), slotAt(2))
	require.Error(t, err)
	assert.False(t, s.Paused(), "a failed alternative leaves the countdown running")
	ticker.waitStarted(t, 2)
	ticker.tickUntil(t, func() bool { return s.Remaining() < DefaultCountdown }, "countdown must keep running")

	confirmer.failures.Store(1)
	require.True(t, s.Toggle())
	_, err = s.ChooseAlternative(context.Background(), slotAt(2))
	require.Error(t, err)
	assert.True(t, s.Paused(), "a failed alternative keeps a paused countdown paused")
}

func TestSessionFailedConfirmCanBeRetried(t *testing.T) {
	confirmer := &confirmerStub{}
	confirmer.failures.Store(1)
	s, _ := newSignedInSession(t, confirmer)

	_, err := s.Confirm(context.Background(), Guest{})
	require.Error(t, err)
	assert.Error(t, s.Err())
	_, ok := s.Booking()
	assert.False(t, ok)

	_, err = s.Confirm(context.Background(), Guest{})
	require.NoError(t, err)
	assert.NoError(t, s.Err())
	assert.EqualValues(t, 2, confirmer.calls.Load())
	assert.Equal(t, "key-1", confirmer.lastRequest().IdempotencyKey)
}

func TestSessionCloseStopsCountdown(t *testing.T) {
	confirmer := &confirmerStub{}
	s, ticker := newSignedInSession(t, confirmer)

	ticker.advance(t, DefaultCountdown-1)
	s.Close()

	last := ticker.current()
	assert.True(t, last.stopped.Load())
	assertNotConsumed(t, last, "closed session must not consume ticks")

	_, err := s.Confirm(context.Background(), Guest{})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Zero(t, confirmer.calls.Load())
	s.Close()
}

func TestSessionCloseCancelsInFlightConfirm(t *testing.T) {
	confirmer := &confirmerStub{release: make(chan struct{})}
	s, _ := newSignedInSession(t, confirmer)

	result := make(chan error, 1)
	go func() {
		_, err := s.Confirm(context.Background(), Guest{})
		result <- err
	}()
	require.Eventually(t, func() bool { return confirmer.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Close()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("confirm was not canceled by Close")
	}
	_, ok := s.Booking()
	assert.False(t, ok)
}

func TestAnonymousSession(t *testing.T) {
	confirmer := &confirmerStub{}
	view := LinkView{AvailableSlots: []Slot{slotAt(1), slotAt(2)}}
	s := NewSession(context.Background(), confirmer, LinkRef{ShareToken: "tok"}, view, Options{IdempotencyKey: "key-2"})
	defer s.Close()

	selected, ok := s.Selected()
	require.True(t, ok, "first slot is preselected")
	assert.True(t, selected.Start.Equal(slotAt(1).Start))
	assert.False(t, s.Toggle(), "anonymous sessions have no countdown")

	assert.ErrorIs(t, s.Select(slotAt(7).Start), ErrUnknownSlot)
	require.NoError(t, s.Select(slotAt(2).Start))

	_, err := s.Confirm(context.Background(), Guest{Name: "Gus"})
	assert.ErrorIs(t, err, ErrGuestDetails)
	_, err = s.Confirm(context.Background(), Guest{Name: "Gus", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrGuestDetails)
	assert.Zero(t, confirmer.calls.Load())

	booking, err := s.Confirm(context.Background(), Guest{Name: " Gus ", Email: "gus@example.com"})
	require.NoError(t, err)
	assert.True(t, booking.StartAt.Equal(slotAt(2).Start))

	req := confirmer.lastRequest()
	assert.Equal(t, "Gus", req.GuestName)
	assert.Equal(t, "gus@example.com", req.GuestEmail)
	assert.Equal(t, "key-2", req.IdempotencyKey)
}

func TestAnonymousSessionWithoutSlots(t *testing.T) {
	s := NewSession(context.Background(), &confirmerStub{}, LinkRef{Username: "olivia"}, LinkView{Message: "No slots available right now."}, Options{})
	defer s.Close()

	_, ok := s.Selected()
	assert.False(t, ok)
	_, err := s.Confirm(context.Background(), Guest{Name: "Gus", Email: "gus@example.com"})
	assert.ErrorIs(t, err, ErrNoSelection)
}
