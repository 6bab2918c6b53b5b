package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStatus struct {
	mu      sync.Mutex
	results []HuntResult
	errs    []error
	calls   int
}

func (s *scriptedStatus) HuntStatus(ctx context.Context, podToken string) (HuntResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return HuntResult{}, s.errs[i]
	}
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	return s.results[i], nil
}

func goal(name, raw string) GoalResult {
	return GoalResult{Name: name, Value: json.RawMessage(raw)}
}

func TestPoller_StopsWhenComplete(t *testing.T) {
	status := &scriptedStatus{results: []HuntResult{
		{Status: HuntRunning, Goals: []GoalResult{goal("a", `"x"`), goal("b", `null`)}},
		{Status: HuntCompleted, Goals: []GoalResult{goal("a", `"x"`), goal("b", `"y"`)}},
	}}

	result, err := NewPoller(status, 5, time.Millisecond).Await(context.Background(), "pod-1")
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Equal(t, 2, status.calls)
}

func TestPoller_ReturnsPartialWhenAttemptsRunOut(t *testing.T) {
	status := &scriptedStatus{results: []HuntResult{
		{Status: HuntRunning, Goals: []GoalResult{goal("a", `"x"`), goal("b", `null`)}},
	}}

	result, err := NewPoller(status, 3, time.Millisecond).Await(context.Background(), "pod-1")
	require.ErrorIs(t, err, ErrIncomplete)
	assert.False(t, result.Complete())
	require.Len(t, result.Goals, 2)
	assert.True(t, result.Goals[0].Filled())
	assert.Equal(t, 3, status.calls)
}

func TestPoller_RetriesTransientErrors(t *testing.T) {
	status := &scriptedStatus{
		errs:    []error{ErrUnavailable, nil},
		results: []HuntResult{{}, {Status: HuntCompleted, Goals: []GoalResult{goal("a", `1`)}}},
	}

	result, err := NewPoller(status, 3, time.Millisecond).Await(context.Background(), "pod-1")
	require.NoError(t, err)
	assert.True(t, result.Complete())
}

func TestPoller_PermanentErrorStops(t *testing.T) {
	boom := &StatusError{Code: 404, Message: "unknown hunt"}
	status := &scriptedStatus{errs: []error{boom}, results: []HuntResult{{}}}

	_, err := NewPoller(status, 5, time.Millisecond).Await(context.Background(), "pod-1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 1, status.calls)
}
