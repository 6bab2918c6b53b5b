// Package engine talks to the external hunt and slot-ranking engine.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/podcoord/internal/logging"
)

// ErrUnavailable marks failures worth retrying: transport errors and 5xx answers.
var ErrUnavailable = errors.New("engine: unavailable")

// StatusError is a non-retryable error answer from the engine.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine: %d %s", e.Code, e.Message)
}

// Hunt statuses reported by the engine.
const (
	HuntRunning   = "running"
	HuntCompleted = "completed"
	HuntFailed    = "failed"
)

// GoalSpec describes one goal the engine is asked to fill.
type GoalSpec struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Instructions string `json:"instructions,omitempty"`
}

// HuntRequest starts a hunt for a pod.
type HuntRequest struct {
	PodType      string     `json:"pod_type"`
	Description  string     `json:"description"`
	OwnerID      string     `json:"owner_id"`
	Participants []string   `json:"participants,omitempty"`
	Goals        []GoalSpec `json:"goals"`
}

// GoalResult is one goal as reported by the engine. Value is raw JSON; null means unfilled.
type GoalResult struct {
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Filled reports whether the engine produced a value for the goal.
func (g GoalResult) Filled() bool {
	trimmed := bytes.TrimSpace(g.Value)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// HuntResult is the engine's view of a hunt.
type HuntResult struct {
	Status string       `json:"status"`
	Goals  []GoalResult `json:"goals"`
	Error  string       `json:"error,omitempty"`
}

// Complete reports whether every goal carries a value.
func (r HuntResult) Complete() bool {
	if len(r.Goals) == 0 {
		return false
	}
	for _, goal := range r.Goals {
		if !goal.Filled() {
			return false
		}
	}
	return true
}

// RankRequest asks for ranked slots on an owner's calendar.
type RankRequest struct {
	OwnerID     string `json:"owner_id"`
	ViewerID    string `json:"viewer_id,omitempty"`
	Duration    int    `json:"duration,omitempty"`
	MeetingType string `json:"meeting_type,omitempty"`
}

// RankedSlot is a single candidate time.
type RankedSlot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Duration    int       `json:"duration"`
	MeetingType string    `json:"meeting_type"`
	Label       string    `json:"label"`
	Reason      string    `json:"reason"`
	ReasonToken string    `json:"reason_token"`
}

// RankResponse is the ordered slot list with the ranker's explanation.
type RankResponse struct {
	Slots           []RankedSlot `json:"slots"`
	AlgorithmReason string       `json:"algorithm_reason"`
	Message         string       `json:"message"`
}

// Client is a JSON-over-HTTP engine client.
type Client struct {
	hc      *http.Client
	baseURL string
	log     *slog.Logger
}

// NewClient returns a client for the engine at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.With(logging.Module("engine")),
	}
}

// StartHunt asks the engine to start (or restart) the hunt for a pod.
func (c *Client) StartHunt(ctx context.Context, podToken string, req HuntRequest) (HuntResult, error) {
	var result HuntResult
	err := c.do(ctx, http.MethodPost, "/hunts/"+url.PathEscape(podToken), req, &result)
	return result, err
}

// HuntStatus fetches the current state of a pod's hunt.
func (c *Client) HuntStatus(ctx context.Context, podToken string) (HuntResult, error) {
	var result HuntResult
	err := c.do(ctx, http.MethodGet, "/hunts/"+url.PathEscape(podToken), nil, &result)
	return result, err
}

// RankSlots returns candidate slots ordered best first.
func (c *Client) RankSlots(ctx context.Context, req RankRequest) (RankResponse, error) {
	var result RankResponse
	err := c.do(ctx, http.MethodPost, "/slots/rank", req, &result)
	return result, err
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) (err error) {
	endpoint := c.baseURL + path
	log := c.log.With(slog.String("method", method), slog.String("endpoint", endpoint))

	status := "ERROR"
	started := time.Now()
	defer func() {
		log.Debug("engine request completed",
			slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(started))/float64(time.Millisecond))),
			slog.String("status", status))
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("engine: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("engine: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		log.Warn("engine request failed", logging.Err(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	status = resp.Status

	if resp.StatusCode >= 500 {
		log.Warn("engine returned server error", slog.String("status", resp.Status))
		return fmt.Errorf("%w: %s", ErrUnavailable, errorMessage(resp.Status, data))
	}
	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Status, data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("engine: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} when present, else the raw body.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return status
}
