package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/example/podcoord/internal/logging"
)

var errTransient = errors.New("negotiation: transient failure")

// LinkClient calls the link endpoints of a podcoord server.
type LinkClient struct {
	hc          *http.Client
	baseURL     string
	bearer      string
	log         *slog.Logger
	maxRetries  uint64
	retryPolicy func() backoff.BackOff
}

// NewLinkClient returns a client for the server at baseURL. An empty bearer token
// makes the client act as an anonymous guest.
func NewLinkClient(baseURL, bearer string, timeout time.Duration, logger *slog.Logger) *LinkClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LinkClient{
		hc:         &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		bearer:     bearer,
		log:        logger.With(logging.Module("negotiation")),
		maxRetries: 3,
		retryPolicy: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

// Resolve fetches the link as seen by this client's identity.
func (c *LinkClient) Resolve(ctx context.Context, ref LinkRef) (LinkView, error) {
	var view LinkView
	err := c.do(ctx, http.MethodGet, ref.path(), nil, &view)
	return view, err
}

// Confirm books a slot. Requests carrying an idempotency key are retried on
// transport failures and 5xx answers; the server collapses the repeats.
func (c *LinkClient) Confirm(ctx context.Context, ref LinkRef, req ConfirmRequest) (Booking, error) {
	var out struct {
		Booking Booking `json:"booking"`
	}
	operation := func() error {
		err := c.do(ctx, http.MethodPost, ref.path()+"/book", req, &out)
		if err == nil || errors.Is(err, errTransient) {
			return err
		}
		return backoff.Permanent(err)
	}

	if req.IdempotencyKey == "" {
		if err := operation(); err != nil {
			return Booking{}, unwrapPermanent(err)
		}
		return out.Booking, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.retryPolicy(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return Booking{}, unwrapPermanent(err)
	}
	return out.Booking, nil
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func (c *LinkClient) do(ctx context.Context, method, path string, payload, out any) error {
	endpoint := c.baseURL + path
	log := c.log.With(slog.String("method", method), slog.String("endpoint", endpoint))

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("negotiation: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("negotiation: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("link request failed", logging.Err(err))
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		log.Warn("server error", slog.String("status", resp.Status))
		return fmt.Errorf("%w: %w", errTransient, decodeAPIError(resp.StatusCode, data))
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("negotiation: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	apiErr.Status = status
	return apiErr
}
