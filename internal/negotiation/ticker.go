package negotiation

import "time"

// Ticker is a stoppable periodic signal.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc builds the ticker driving a countdown.
type NewTickerFunc func(d time.Duration) Ticker

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}
