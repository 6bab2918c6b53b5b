package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
)

// Engine adapts the HTTP client to the application's HuntEngine and SlotRanker.
type Engine struct {
	client *Client
	poller *Poller
}

var (
	_ application.HuntEngine = (*Engine)(nil)
	_ application.SlotRanker = (*Engine)(nil)
)

// New wraps client. A nil poller returns the first answer of StartHunt as is.
func New(client *Client, poller *Poller) *Engine {
	return &Engine{client: client, poller: poller}
}

// StartHunt starts the hunt and, with a poller configured, waits for it to fill.
// A hunt that is still partial when polling gives up returns the values it has;
// the caller decides what an incomplete fill means.
func (e *Engine) StartHunt(ctx context.Context, pod coordination.Pod) ([]coordination.GoalValue, error) {
	result, err := e.client.StartHunt(ctx, pod.Token, huntRequest(pod))
	if err != nil {
		return nil, err
	}
	if result.Status != HuntFailed && !result.Complete() && e.poller != nil {
		polled, err := e.poller.Await(ctx, pod.Token)
		if err != nil && !errors.Is(err, ErrIncomplete) {
			return nil, err
		}
		result = polled
	}
	return goalValues(result)
}

// HuntStatus returns the engine's current values for the pod.
func (e *Engine) HuntStatus(ctx context.Context, podToken string) ([]coordination.GoalValue, error) {
	result, err := e.client.HuntStatus(ctx, podToken)
	if err != nil {
		return nil, err
	}
	return goalValues(result)
}

// RankSlots asks the engine for the owner's candidate slots.
func (e *Engine) RankSlots(ctx context.Context, query application.SlotQuery) (application.SlotRanking, error) {
	resp, err := e.client.RankSlots(ctx, RankRequest{
		OwnerID:     query.OwnerID,
		ViewerID:    query.ViewerID,
		Duration:    query.Duration,
		MeetingType: string(query.MeetingType),
	})
	if err != nil {
		return application.SlotRanking{}, err
	}

	ranking := application.SlotRanking{
		Slots:           make([]application.Slot, 0, len(resp.Slots)),
		AlgorithmReason: resp.AlgorithmReason,
		Message:         resp.Message,
	}
	for _, slot := range resp.Slots {
		ranking.Slots = append(ranking.Slots, application.Slot{
			Start:       slot.Start,
			End:         slot.End,
			Duration:    slot.Duration,
			MeetingType: application.MeetingType(slot.MeetingType),
			Label:       slot.Label,
			Reason:      slot.Reason,
			ReasonToken: slot.ReasonToken,
		})
	}
	return ranking, nil
}

func huntRequest(pod coordination.Pod) HuntRequest {
	req := HuntRequest{
		PodType:      string(pod.Type),
		Description:  pod.Description,
		OwnerID:      pod.OwnerID,
		Participants: append([]string(nil), pod.InviteEmails...),
		Goals:        make([]GoalSpec, 0, len(pod.Goals)),
	}
	for _, goal := range pod.Goals {
		req.Goals = append(req.Goals, GoalSpec{
			ID:           goal.ID,
			Name:         goal.Name,
			Type:         goal.Type,
			Instructions: goal.Instructions,
		})
	}
	return req
}

// goalValues converts a hunt result. A failed hunt is an error carrying the engine's message.
func goalValues(result HuntResult) ([]coordination.GoalValue, error) {
	if result.Status == HuntFailed {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = "hunt failed"
		}
		return nil, errors.New(msg)
	}

	values := make([]coordination.GoalValue, 0, len(result.Goals))
	for _, goal := range result.Goals {
		value := coordination.GoalValue{GoalID: goal.ID, Name: goal.Name}
		if goal.Filled() {
			raw := string(goal.Value)
			value.Value = &raw
		}
		values = append(values, value)
	}
	if len(values) == 0 && result.Error != "" {
		return nil, fmt.Errorf("engine: %s", result.Error)
	}
	return values, nil
}
