package main

import (
	"context"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
	"github.com/example/podcoord/internal/persistence"
)

type podRepositoryAdapter struct {
	repo persistence.PodRepository
}

func newPodRepositoryAdapter(repo persistence.PodRepository) *podRepositoryAdapter {
	return &podRepositoryAdapter{repo: repo}
}

func (a *podRepositoryAdapter) CreatePod(ctx context.Context, pod coordination.Pod) (coordination.Pod, error) {
	if err := a.repo.CreatePod(ctx, toPersistencePod(pod)); err != nil {
		return coordination.Pod{}, err
	}
	return a.GetPod(ctx, pod.Token)
}

func (a *podRepositoryAdapter) GetPod(ctx context.Context, token string) (coordination.Pod, error) {
	stored, err := a.repo.GetPod(ctx, token)
	if err != nil {
		return coordination.Pod{}, err
	}
	return toCoordinationPod(stored), nil
}

func (a *podRepositoryAdapter) UpdatePod(ctx context.Context, pod coordination.Pod) (coordination.Pod, error) {
	if err := a.repo.UpdatePod(ctx, toPersistencePod(pod)); err != nil {
		return coordination.Pod{}, err
	}
	return a.GetPod(ctx, pod.Token)
}

func (a *podRepositoryAdapter) DeletePod(ctx context.Context, token string) error {
	return a.repo.DeletePod(ctx, token)
}

func (a *podRepositoryAdapter) ListPodsForMember(ctx context.Context, userID, email string) ([]coordination.Pod, error) {
	models, err := a.repo.ListPodsForMember(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	pods := make([]coordination.Pod, 0, len(models))
	for _, model := range models {
		pods = append(pods, toCoordinationPod(model))
	}
	return pods, nil
}

type accountDirectoryAdapter struct {
	repo persistence.AccountRepository
}

func newAccountDirectoryAdapter(repo persistence.AccountRepository) *accountDirectoryAdapter {
	return &accountDirectoryAdapter{repo: repo}
}

func (a *accountDirectoryAdapter) GetAccount(ctx context.Context, id string) (application.Account, error) {
	stored, err := a.repo.GetAccount(ctx, id)
	if err != nil {
		return application.Account{}, err
	}
	return toApplicationAccount(stored), nil
}

func (a *accountDirectoryAdapter) GetAccountByUsername(ctx context.Context, username string) (application.Account, error) {
	stored, err := a.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		return application.Account{}, err
	}
	return toApplicationAccount(stored), nil
}

type shareLinkRepositoryAdapter struct {
	repo persistence.ShareLinkRepository
}

func newShareLinkRepositoryAdapter(repo persistence.ShareLinkRepository) *shareLinkRepositoryAdapter {
	return &shareLinkRepositoryAdapter{repo: repo}
}

func (a *shareLinkRepositoryAdapter) CreateShareLink(ctx context.Context, link application.ShareLink) (application.ShareLink, error) {
	if err := a.repo.CreateShareLink(ctx, toPersistenceShareLink(link)); err != nil {
		return application.ShareLink{}, err
	}
	return a.GetShareLink(ctx, link.Token)
}

func (a *shareLinkRepositoryAdapter) GetShareLink(ctx context.Context, token string) (application.ShareLink, error) {
	stored, err := a.repo.GetShareLink(ctx, token)
	if err != nil {
		return application.ShareLink{}, err
	}
	return toApplicationShareLink(stored), nil
}

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) CreateBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := a.repo.CreateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	return a.GetBooking(ctx, booking.Token)
}

func (a *bookingRepositoryAdapter) CreateShareLinkBooking(ctx context.Context, shareToken string, booking application.Booking) (application.Booking, error) {
	if err := a.repo.CreateShareLinkBooking(ctx, shareToken, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	return a.GetBooking(ctx, booking.Token)
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, token string) (application.Booking, error) {
	stored, err := a.repo.GetBooking(ctx, token)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func (a *bookingRepositoryAdapter) UpdateBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := a.repo.UpdateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	return a.GetBooking(ctx, booking.Token)
}

func (a *bookingRepositoryAdapter) FindBookingByIdempotencyKey(ctx context.Context, linkIdentifier, key string) (application.Booking, error) {
	stored, err := a.repo.FindBookingByIdempotencyKey(ctx, linkIdentifier, key)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(stored), nil
}

func toPersistencePod(pod coordination.Pod) persistence.Pod {
	goals := make([]persistence.Goal, 0, len(pod.Goals))
	for i, goal := range pod.Goals {
		goals = append(goals, persistence.Goal{
			ID:           goal.ID,
			PodToken:     pod.Token,
			Name:         goal.Name,
			Type:         goal.Type,
			Instructions: goal.Instructions,
			Value:        cloneString(goal.Value),
			Status:       string(goal.Status),
			Position:     i,
		})
	}
	return persistence.Pod{
		Token:              pod.Token,
		Type:               string(pod.Type),
		Status:             string(pod.Status),
		Description:        pod.Description,
		OwnerID:            pod.OwnerID,
		InviteEmails:       append([]string(nil), pod.InviteEmails...),
		InviteJoinedEmails: append([]string(nil), pod.InviteJoinedEmails...),
		HuntError:          pod.HuntError,
		Goals:              goals,
		CreatedAt:          pod.CreatedAt.UTC(),
		UpdatedAt:          pod.UpdatedAt.UTC(),
	}
}

func toCoordinationPod(model persistence.Pod) coordination.Pod {
	goals := make([]coordination.Goal, 0, len(model.Goals))
	for _, goal := range model.Goals {
		goals = append(goals, coordination.Goal{
			ID:           goal.ID,
			PodToken:     model.Token,
			Name:         goal.Name,
			Type:         goal.Type,
			Instructions: goal.Instructions,
			Value:        cloneString(goal.Value),
			Status:       coordination.GoalStatus(goal.Status),
			Position:     goal.Position,
		})
	}
	return coordination.Pod{
		Token:              model.Token,
		Type:               coordination.PodType(model.Type),
		Status:             coordination.Status(model.Status),
		Description:        model.Description,
		OwnerID:            model.OwnerID,
		InviteEmails:       append([]string(nil), model.InviteEmails...),
		InviteJoinedEmails: append([]string(nil), model.InviteJoinedEmails...),
		HuntError:          model.HuntError,
		Goals:              goals,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func toApplicationAccount(model persistence.Account) application.Account {
	return application.Account{
		ID:                 model.ID,
		Email:              model.Email,
		Username:           model.Username,
		Name:               model.Name,
		CalendarConnected:  model.CalendarConnected,
		DefaultMeetingType: application.MeetingType(model.DefaultMeetingType),
		DefaultDuration:    model.DefaultDuration,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func toPersistenceShareLink(link application.ShareLink) persistence.ShareLink {
	return persistence.ShareLink{
		Token:         link.Token,
		OwnerID:       link.OwnerID,
		CreatedAt:     link.CreatedAt.UTC(),
		ExpiresAt:     link.ExpiresAt,
		UsedAt:        link.UsedAt,
		OriginBooking: optionalString(link.OriginBooking),
	}
}

func toApplicationShareLink(model persistence.ShareLink) application.ShareLink {
	return application.ShareLink{
		Token:         model.Token,
		OwnerID:       model.OwnerID,
		CreatedAt:     model.CreatedAt,
		ExpiresAt:     model.ExpiresAt,
		UsedAt:        model.UsedAt,
		OriginBooking: derefString(model.OriginBooking),
	}
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		Token:            booking.Token,
		OwnerID:          booking.OwnerID,
		OwnerUsername:    booking.OwnerUsername,
		GuestID:          optionalString(booking.GuestID),
		GuestName:        booking.GuestName,
		GuestEmail:       booking.GuestEmail,
		StartAt:          booking.StartAt.UTC(),
		EndAt:            booking.EndAt.UTC(),
		MeetingType:      string(booking.MeetingType),
		Status:           string(booking.Status),
		Notes:            booking.Notes,
		OwnerSlotReason:  booking.OwnerSlotReason,
		BookerSlotReason: booking.BookerSlotReason,
		LinkIdentifier:   booking.LinkIdentifier,
		IdempotencyKey:   optionalString(booking.IdempotencyKey),
		CreatedAt:        booking.CreatedAt.UTC(),
		UpdatedAt:        booking.UpdatedAt.UTC(),
	}
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		Token:            model.Token,
		OwnerID:          model.OwnerID,
		OwnerUsername:    model.OwnerUsername,
		GuestID:          derefString(model.GuestID),
		GuestName:        model.GuestName,
		GuestEmail:       model.GuestEmail,
		StartAt:          model.StartAt,
		EndAt:            model.EndAt,
		MeetingType:      application.MeetingType(model.MeetingType),
		Status:           application.BookingStatus(model.Status),
		Notes:            model.Notes,
		OwnerSlotReason:  model.OwnerSlotReason,
		BookerSlotReason: model.BookerSlotReason,
		LinkIdentifier:   model.LinkIdentifier,
		IdempotencyKey:   derefString(model.IdempotencyKey),
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
