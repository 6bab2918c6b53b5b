package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type statusFetcher interface {
	HuntStatus(ctx context.Context, podToken string) (HuntResult, error)
}

// ErrIncomplete is returned with the last partial result when polling gives up.
var ErrIncomplete = errors.New("engine: hunt still incomplete")

// Poller waits for a hunt to fill every goal.
type Poller struct {
	client   statusFetcher
	attempts uint64
	interval time.Duration
}

// NewPoller polls client up to attempts times, interval apart.
func NewPoller(client statusFetcher, attempts int, interval time.Duration) *Poller {
	if attempts < 1 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{client: client, attempts: uint64(attempts), interval: interval}
}

// Await polls until the hunt completes, fails, or attempts run out. When attempts
// run out the last partial result is returned together with ErrIncomplete.
func (p *Poller) Await(ctx context.Context, podToken string) (HuntResult, error) {
	var (
		last    HuntResult
		hasLast bool
	)
	operation := func() error {
		result, err := p.client.HuntStatus(ctx, podToken)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		last, hasLast = result, true
		if result.Status == HuntFailed || result.Complete() {
			return nil
		}
		return ErrIncomplete
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), p.attempts-1), ctx)
	err := backoff.Retry(operation, policy)
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, ErrIncomplete) && hasLast:
		return last, ErrIncomplete
	}
	return last, err
}
