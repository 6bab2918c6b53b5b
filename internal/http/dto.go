package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
)

type goalDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Instructions string  `json:"instructions"`
	Value        *string `json:"value"`
	DisplayValue string  `json:"display_value"`
	Status       string  `json:"status"`
	Position     int     `json:"position"`
}

type podDTO struct {
	Token              string    `json:"token"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	Description        string    `json:"description"`
	OwnerID            string    `json:"owner_id"`
	InviteEmails       []string  `json:"invite_emails"`
	InviteJoinedEmails []string  `json:"invite_joined_emails"`
	HuntError          string    `json:"hunt_error,omitempty"`
	HasResults         bool      `json:"has_results"`
	Link               string    `json:"link"`
	Goals              []goalDTO `json:"goals"`
	CreatedAt          string    `json:"created_at"`
	UpdatedAt          string    `json:"updated_at"`
}

type podResponse struct {
	Pod podDTO `json:"pod"`
}

type podListResponse struct {
	Pods []podDTO `json:"pods"`
}

type goalResponse struct {
	Goal goalDTO `json:"goal"`
}

type goalListResponse struct {
	Goals []goalDTO `json:"goals"`
}

type joinResponse struct {
	Pod     podDTO `json:"pod"`
	Outcome string `json:"outcome"`
}

type inviteResponse struct {
	Pod       podDTO `json:"pod"`
	OwnerName string `json:"owner_name"`
	Joined    bool   `json:"joined"`
	Invited   bool   `json:"invited"`
}

func toGoalDTO(goal coordination.Goal) goalDTO {
	return goalDTO{
		ID:           goal.ID,
		Name:         goal.Name,
		Type:         goal.Type,
		Instructions: goal.Instructions,
		Value:        goal.Value,
		DisplayValue: coordination.RenderValue(goal.Value),
		Status:       string(goal.Status),
		Position:     goal.Position,
	}
}

func toGoalDTOs(goals []coordination.Goal) []goalDTO {
	out := make([]goalDTO, 0, len(goals))
	for _, goal := range goals {
		out = append(out, toGoalDTO(goal))
	}
	return out
}

func toPodDTO(pod coordination.Pod, baseURL string) podDTO {
	return podDTO{
		Token:              pod.Token,
		Type:               string(pod.Type),
		Status:             string(pod.Status),
		Description:        pod.Description,
		OwnerID:            pod.OwnerID,
		InviteEmails:       nonNil(pod.InviteEmails),
		InviteJoinedEmails: nonNil(pod.InviteJoinedEmails),
		HuntError:          pod.HuntError,
		HasResults:         pod.HasResults(),
		Link:               joinURL(baseURL, "pods", "invite", pod.Token),
		Goals:              toGoalDTOs(pod.Goals),
		CreatedAt:          formatTime(pod.CreatedAt),
		UpdatedAt:          formatTime(pod.UpdatedAt),
	}
}

type slotDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	Duration    int    `json:"duration"`
	MeetingType string `json:"meeting_type"`
	Label       string `json:"label,omitempty"`
	Reason      string `json:"reason,omitempty"`
	ReasonToken string `json:"reason_token,omitempty"`
}

type ownerDTO struct {
	Name               string `json:"name"`
	Username           string `json:"username"`
	DefaultMeetingType string `json:"default_meeting_type"`
	DefaultDuration    int    `json:"default_duration"`
}

type linkViewResponse struct {
	Owner            ownerDTO  `json:"owner"`
	SignedIn         bool      `json:"signed_in"`
	PreferredSlot    *slotDTO  `json:"preferred_slot,omitempty"`
	AlternativeSlots []slotDTO `json:"alternative_slots,omitempty"`
	AvailableSlots   []slotDTO `json:"available_slots,omitempty"`
	AlgorithmReason  string    `json:"algorithm_reason,omitempty"`
	Message          string    `json:"message,omitempty"`
}

type shareLinkResponse struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func toSlotDTO(slot application.Slot) slotDTO {
	return slotDTO{
		Start:       formatTime(slot.Start),
		End:         formatTime(slot.End),
		Duration:    slot.Duration,
		MeetingType: string(slot.MeetingType),
		Label:       slot.Label,
		Reason:      slot.Reason,
		ReasonToken: slot.ReasonToken,
	}
}

func toSlotDTOs(slots []application.Slot) []slotDTO {
	if len(slots) == 0 {
		return nil
	}
	out := make([]slotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, toSlotDTO(slot))
	}
	return out
}

func toLinkViewResponse(view application.LinkView) linkViewResponse {
	resp := linkViewResponse{
		Owner: ownerDTO{
			Name:               view.Owner.Name,
			Username:           view.Owner.Username,
			DefaultMeetingType: string(view.Owner.DefaultMeetingType),
			DefaultDuration:    view.Owner.DefaultDuration,
		},
		SignedIn:         view.SignedIn,
		AlternativeSlots: toSlotDTOs(view.AlternativeSlots),
		AvailableSlots:   toSlotDTOs(view.AvailableSlots),
		AlgorithmReason:  view.AlgorithmReason,
		Message:          view.Message,
	}
	if view.PreferredSlot != nil {
		preferred := toSlotDTO(*view.PreferredSlot)
		resp.PreferredSlot = &preferred
	}
	return resp
}

func toShareLinkResponse(link application.ShareLink, baseURL string) shareLinkResponse {
	resp := shareLinkResponse{
		Token: link.Token,
		URL:   joinURL(baseURL, "share", link.Token),
	}
	if link.ExpiresAt != nil {
		resp.ExpiresAt = formatTime(*link.ExpiresAt)
	}
	return resp
}

type bookingDTO struct {
	Token            string `json:"token"`
	OwnerID          string `json:"owner_id"`
	OwnerUsername    string `json:"owner_username"`
	GuestName        string `json:"guest_name"`
	GuestEmail       string `json:"guest_email"`
	StartAt          string `json:"start_at"`
	EndAt            string `json:"end_at"`
	MeetingType      string `json:"meeting_type"`
	Status           string `json:"status"`
	Notes            string `json:"notes"`
	OwnerSlotReason  string `json:"owner_slot_reason,omitempty"`
	BookerSlotReason string `json:"booker_slot_reason,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type bookingResponse struct {
	Booking bookingDTO `json:"booking"`
}

type viewerDTO struct {
	Role          string `json:"role"`
	ShowSignupCTA bool   `json:"show_signup_cta"`
}

type bookingViewResponse struct {
	Booking bookingDTO `json:"booking"`
	Viewer  viewerDTO  `json:"viewer"`
}

type rescheduleResponse struct {
	Message        string     `json:"message"`
	RescheduleLink string     `json:"reschedule_link"`
	Booking        bookingDTO `json:"booking"`
}

func toBookingDTO(booking application.Booking) bookingDTO {
	return bookingDTO{
		Token:            booking.Token,
		OwnerID:          booking.OwnerID,
		OwnerUsername:    booking.OwnerUsername,
		GuestName:        booking.GuestName,
		GuestEmail:       booking.GuestEmail,
		StartAt:          formatTime(booking.StartAt),
		EndAt:            formatTime(booking.EndAt),
		MeetingType:      string(booking.MeetingType),
		Status:           string(booking.Status),
		Notes:            booking.Notes,
		OwnerSlotReason:  booking.OwnerSlotReason,
		BookerSlotReason: booking.BookerSlotReason,
		CreatedAt:        formatTime(booking.CreatedAt),
		UpdatedAt:        formatTime(booking.UpdatedAt),
	}
}

// Request bodies.

type podRequest struct {
	application.PodInput
}

func (p *podRequest) Bind(*http.Request) error {
	p.Type = strings.TrimSpace(p.Type)
	p.Description = strings.TrimSpace(p.Description)
	for i := range p.Goals {
		p.Goals[i].Name = strings.TrimSpace(p.Goals[i].Name)
		p.Goals[i].Type = strings.TrimSpace(p.Goals[i].Type)
	}
	return nil
}

type invitesRequest struct {
	Emails []string `json:"emails"`
}

func (*invitesRequest) Bind(*http.Request) error { return nil }

type goalRequest struct {
	application.GoalInput
}

func (g *goalRequest) Bind(*http.Request) error {
	g.Name = strings.TrimSpace(g.Name)
	g.Type = strings.TrimSpace(g.Type)
	return nil
}

type instructionsRequest struct {
	Instructions string `json:"instructions"`
}

func (*instructionsRequest) Bind(*http.Request) error { return nil }

type confirmRequest struct {
	application.ConfirmInput
}

func (c *confirmRequest) Bind(*http.Request) error {
	c.GuestName = strings.TrimSpace(c.GuestName)
	c.GuestEmail = strings.TrimSpace(c.GuestEmail)
	return nil
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (*notesRequest) Bind(*http.Request) error { return nil }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
