package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/coordination"
)

var (
	testSecret = []byte("test-secret")
	testNow    = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ownerP     = application.Principal{UserID: "owner", Email: "owner@example.com", Name: "Olivia"}
	guestP     = application.Principal{UserID: "guest", Email: "guest@example.com", Name: "Gus"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type podServiceStub struct {
	pod     coordination.Pod
	goal    coordination.Goal
	invite  application.InviteView
	outcome coordination.JoinOutcome
	err     error

	calls         []string
	lastPrincipal application.Principal
	lastToken     string
	lastEmail     string
	lastEmails    []string
	lastGoalID    string
	lastText      string
	lastInput     application.PodInput
	lastGoal      application.GoalInput
}

func (s *podServiceStub) record(call string, p application.Principal, token string) {
	s.calls = append(s.calls, call)
	s.lastPrincipal = p
	s.lastToken = token
}

func (s *podServiceStub) CreatePod(_ context.Context, params application.CreatePodParams) (coordination.Pod, error) {
	s.record("CreatePod", params.Principal, "")
	s.lastInput = params.Input
	return s.pod, s.err
}

func (s *podServiceStub) GetPod(_ context.Context, p application.Principal, token string) (coordination.Pod, error) {
	s.record("GetPod", p, token)
	return s.pod, s.err
}

func (s *podServiceStub) ListPods(_ context.Context, p application.Principal) ([]coordination.Pod, error) {
	s.record("ListPods", p, "")
	if s.err != nil {
		return nil, s.err
	}
	return []coordination.Pod{s.pod}, nil
}

func (s *podServiceStub) GetInvite(_ context.Context, p application.Principal, token string) (application.InviteView, error) {
	s.record("GetInvite", p, token)
	return s.invite, s.err
}

func (s *podServiceStub) StartHunt(_ context.Context, p application.Principal, token string) (coordination.Pod, error) {
	s.record("StartHunt", p, token)
	return s.pod, s.err
}

func (s *podServiceStub) RerunHunt(_ context.Context, p application.Principal, token string) (coordination.Pod, error) {
	s.record("RerunHunt", p, token)
	return s.pod, s.err
}

func (s *podServiceStub) RefreshHunt(_ context.Context, p application.Principal, token string) (coordination.Pod, error) {
	s.record("RefreshHunt", p, token)
	return s.pod, s.err
}

func (s *podServiceStub) Close(_ context.Context, p application.Principal, token string) (coordination.Pod, error) {
	s.record("Close", p, token)
	return s.pod, s.err
}

func (s *podServiceStub) DeletePod(_ context.Context, p application.Principal, token string) error {
	s.record("DeletePod", p, token)
	return s.err
}

func (s *podServiceStub) AddInvites(_ context.Context, p application.Principal, token string, emails []string) (coordination.Pod, error) {
	s.record("AddInvites", p, token)
	s.lastEmails = emails
	return s.pod, s.err
}

func (s *podServiceStub) RemoveInvite(_ context.Context, p application.Principal, token, email string) (coordination.Pod, error) {
	s.record("RemoveInvite", p, token)
	s.lastEmail = email
	return s.pod, s.err
}

func (s *podServiceStub) Join(_ context.Context, p application.Principal, token string) (coordination.Pod, coordination.JoinOutcome, error) {
	s.record("Join", p, token)
	return s.pod, s.outcome, s.err
}

func (s *podServiceStub) ListGoals(_ context.Context, p application.Principal, token string) ([]coordination.Goal, error) {
	s.record("ListGoals", p, token)
	return s.pod.Goals, s.err
}

func (s *podServiceStub) EditGoalInstructions(_ context.Context, p application.Principal, token, goalID, instructions string) (coordination.Goal, error) {
	s.record("EditGoalInstructions", p, token)
	s.lastGoalID = goalID
	s.lastText = instructions
	return s.goal, s.err
}

func (s *podServiceStub) AddGoal(_ context.Context, p application.Principal, token string, input application.GoalInput) (coordination.Goal, error) {
	s.record("AddGoal", p, token)
	s.lastGoal = input
	return s.goal, s.err
}

func (s *podServiceStub) DeleteGoal(_ context.Context, p application.Principal, token, goalID string) (coordination.Pod, error) {
	s.record("DeleteGoal", p, token)
	s.lastGoalID = goalID
	return s.pod, s.err
}

type linkServiceStub struct {
	view    application.LinkView
	booking application.Booking
	share   application.ShareLink
	err     error

	lastViewer application.Principal
	lastRef    application.LinkRef
	lastInput  application.ConfirmInput
}

func (s *linkServiceStub) Resolve(_ context.Context, viewer application.Principal, ref application.LinkRef) (application.LinkView, error) {
	s.lastViewer, s.lastRef = viewer, ref
	return s.view, s.err
}

func (s *linkServiceStub) Confirm(_ context.Context, viewer application.Principal, ref application.LinkRef, input application.ConfirmInput) (application.Booking, error) {
	s.lastViewer, s.lastRef, s.lastInput = viewer, ref, input
	return s.booking, s.err
}

func (s *linkServiceStub) IssueShareLink(_ context.Context, p application.Principal) (application.ShareLink, error) {
	s.lastViewer = p
	return s.share, s.err
}

type bookingServiceStub struct {
	view   application.BookingView
	result application.RescheduleResult
	err    error

	lastViewer application.Principal
	lastToken  string
	lastNotes  string
}

func (s *bookingServiceStub) GetBooking(_ context.Context, viewer application.Principal, token string) (application.BookingView, error) {
	s.lastViewer, s.lastToken = viewer, token
	return s.view, s.err
}

func (s *bookingServiceStub) Reschedule(_ context.Context, viewer application.Principal, token string) (application.RescheduleResult, error) {
	s.lastViewer, s.lastToken = viewer, token
	return s.result, s.err
}

func (s *bookingServiceStub) Cancel(_ context.Context, viewer application.Principal, token string) (application.Booking, error) {
	s.lastViewer, s.lastToken = viewer, token
	return s.view.Booking, s.err
}

func (s *bookingServiceStub) UpdateNotes(_ context.Context, viewer application.Principal, token, notes string) (application.Booking, error) {
	s.lastViewer, s.lastToken, s.lastNotes = viewer, token, notes
	return s.view.Booking, s.err
}

type testServer struct {
	pods     *podServiceStub
	links    *linkServiceStub
	bookings *bookingServiceStub
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()
	ts := &testServer{
		pods:     &podServiceStub{},
		links:    &linkServiceStub{},
		bookings: &bookingServiceStub{},
	}
	ts.handler = NewRouter(RouterConfig{
		Pods:      NewPodHandler(ts.pods, "https://pods.example.com/", logger),
		Links:     NewLinkHandler(ts.links, "https://pods.example.com", logger),
		Bookings:  NewBookingHandler(ts.bookings, "https://pods.example.com", logger),
		JWTSecret: testSecret,
		Logger:    logger,
	})
	return ts
}

func bearer(t *testing.T, p application.Principal) string {
	t.Helper()
	token, err := SignToken(testSecret, p, time.Now(), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, method, path, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func samplePod() coordination.Pod {
	value := `"Tuesday 10:00"`
	return coordination.Pod{
		Token:              "pod-1",
		Type:               coordination.PodTypeMeeting,
		Status:             coordination.StatusPendingReview,
		Description:        "Quarterly sync",
		OwnerID:            ownerP.UserID,
		InviteEmails:       []string{guestP.Email},
		InviteJoinedEmails: []string{guestP.Email},
		Goals: []coordination.Goal{
			{ID: "g1", PodToken: "pod-1", Name: "time", Value: &value, Status: coordination.GoalStatusCompleted},
			{ID: "g2", PodToken: "pod-1", Name: "place", Status: coordination.GoalStatusPending, Position: 1},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

func TestPodRoutes(t *testing.T) {
	t.Parallel()

	t.Run("create answers with the fresh pod and its invite link", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.pods.pod = samplePod()

		rec := ts.do(t, http.MethodPost, "/v1/pods", bearer(t, ownerP),
			`{"type":" meeting ","description":"Quarterly sync","invite_emails":["guest@example.com"]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if ts.pods.lastPrincipal != ownerP {
			t.Fatalf("principal not forwarded: %+v", ts.pods.lastPrincipal)
		}
		if ts.pods.lastInput.Type != "meeting" || len(ts.pods.lastInput.InviteEmails) != 1 {
			t.Fatalf("unexpected input %+v", ts.pods.lastInput)
		}

		resp := decode[podResponse](t, rec)
		if resp.Pod.Link != "https://pods.example.com/pods/invite/pod-1" {
			t.Fatalf("unexpected link %q", resp.Pod.Link)
		}
		if !resp.Pod.HasResults {
			t.Fatalf("expected has_results once a goal is filled")
		}
		if resp.Pod.Goals[0].DisplayValue != "Tuesday 10:00" || resp.Pod.Goals[1].DisplayValue != "" {
			t.Fatalf("unexpected display values %+v", resp.Pod.Goals)
		}
	})

	t.Run("anonymous callers are rejected", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodGet, "/v1/pods", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if len(ts.pods.calls) != 0 {
			t.Fatalf("service must not be called, got %v", ts.pods.calls)
		}
	})

	t.Run("token addressed actions reach the matching operation", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			method string
			path   string
			call   string
		}{
			{http.MethodGet, "/v1/pods/pod-1", "GetPod"},
			{http.MethodPost, "/v1/pods/pod-1/hunt", "StartHunt"},
			{http.MethodPost, "/v1/pods/pod-1/rerun", "RerunHunt"},
			{http.MethodPost, "/v1/pods/pod-1/refresh", "RefreshHunt"},
			{http.MethodPost, "/v1/pods/pod-1/close", "Close"},
			{http.MethodGet, "/v1/pods/invite/pod-1", "GetInvite"},
			{http.MethodGet, "/v1/pods/pod-1/goals", "ListGoals"},
			{http.MethodDelete, "/v1/pods/pod-1/goals/g2", "DeleteGoal"},
		}
		for _, tc := range tests {
			ts := newTestServer(t)
			ts.pods.pod = samplePod()
			ts.pods.invite = application.InviteView{Pod: samplePod(), OwnerName: "Olivia", Invited: true}

			rec := ts.do(t, tc.method, tc.path, bearer(t, guestP), "")
			if rec.Code != http.StatusOK {
				t.Fatalf("%s %s: expected 200, got %d: %s", tc.method, tc.path, rec.Code, rec.Body.String())
			}
			if len(ts.pods.calls) != 1 || ts.pods.calls[0] != tc.call {
				t.Fatalf("%s %s: expected %s, got %v", tc.method, tc.path, tc.call, ts.pods.calls)
			}
			if ts.pods.lastToken != "pod-1" {
				t.Fatalf("%s %s: token not forwarded, got %q", tc.method, tc.path, ts.pods.lastToken)
			}
		}
	})

	t.Run("delete answers with no content", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodDelete, "/v1/pods/pod-1", bearer(t, ownerP), "")
		if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
			t.Fatalf("expected empty 204, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("invite management forwards emails", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.pods.pod = samplePod()

		rec := ts.do(t, http.MethodPost, "/v1/pods/pod-1/invites", bearer(t, ownerP), `{"emails":["a@example.com","B@example.com"]}`)
		if rec.Code != http.StatusOK || len(ts.pods.lastEmails) != 2 {
			t.Fatalf("unexpected add invites outcome %d %v", rec.Code, ts.pods.lastEmails)
		}

		rec = ts.do(t, http.MethodDelete, "/v1/pods/pod-1/invites/b%40example.com", bearer(t, ownerP), "")
		if rec.Code != http.StatusOK || ts.pods.lastEmail != "b@example.com" {
			t.Fatalf("unexpected remove outcome %d %q", rec.Code, ts.pods.lastEmail)
		}
	})

	t.Run("join reports the outcome", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.pods.pod = samplePod()
		ts.pods.outcome = coordination.JoinAlreadyJoined

		rec := ts.do(t, http.MethodPost, "/v1/pods/pod-1/join", bearer(t, guestP), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if resp := decode[joinResponse](t, rec); resp.Outcome != "already_joined" {
			t.Fatalf("unexpected outcome %q", resp.Outcome)
		}
		if ts.pods.lastPrincipal.Email != guestP.Email {
			t.Fatalf("join must use the caller's email, got %+v", ts.pods.lastPrincipal)
		}
	})

	t.Run("goal edits forward ids and bodies", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.pods.goal = coordination.Goal{ID: "g3", Name: "budget", Status: coordination.GoalStatusPending}

		rec := ts.do(t, http.MethodPost, "/v1/pods/pod-1/goals", bearer(t, ownerP), `{"name":" budget ","instructions":"under 5k"}`)
		if rec.Code != http.StatusCreated || ts.pods.lastGoal.Name != "budget" {
			t.Fatalf("unexpected add goal outcome %d %+v", rec.Code, ts.pods.lastGoal)
		}

		rec = ts.do(t, http.MethodPatch, "/v1/pods/pod-1/goals/g3", bearer(t, ownerP), `{"instructions":"under 4k"}`)
		if rec.Code != http.StatusOK || ts.pods.lastGoalID != "g3" || ts.pods.lastText != "under 4k" {
			t.Fatalf("unexpected edit outcome %d %q %q", rec.Code, ts.pods.lastGoalID, ts.pods.lastText)
		}
	})

	t.Run("malformed bodies are rejected before the service", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodPost, "/v1/pods", bearer(t, ownerP), `{"type":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if len(ts.pods.calls) != 0 {
			t.Fatalf("service must not be called")
		}
	})
}

func TestServiceErrorMapping(t *testing.T) {
	t.Parallel()

	validation := &application.ValidationError{FieldErrors: map[string]string{"goals": "at most 5 goals"}}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not owner", application.ErrNotOwner, http.StatusForbidden, "NOT_OWNER"},
		{"unauthorized", application.ErrUnauthorized, http.StatusForbidden, "UNAUTHORIZED"},
		{"not invited", application.ErrNotInvited, http.StatusForbidden, "NOT_INVITED"},
		{"not found", application.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"pod closed", application.ErrPodClosed, http.StatusConflict, "POD_CLOSED"},
		{"illegal transition", application.ErrIllegalTransition, http.StatusConflict, "ILLEGAL_TRANSITION"},
		{"invitees not joined", application.ErrInviteesNotJoined, http.StatusConflict, "INVITEES_NOT_JOINED"},
		{"calendar not connected", application.ErrCalendarNotConnected, http.StatusConflict, "CALENDAR_NOT_CONNECTED"},
		{"hunt transient failure", application.ErrHuntTransientFailure, http.StatusServiceUnavailable, "HUNT_TRANSIENT_FAILURE"},
		{"validation", validation, http.StatusUnprocessableEntity, "VALIDATION_FAILED"},
		{"unexpected", io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ts := newTestServer(t)
			ts.pods.err = tc.err

			rec := ts.do(t, http.MethodPost, "/v1/pods/pod-1/hunt", bearer(t, ownerP), "")
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			resp := decode[errorResponse](t, rec)
			if resp.ErrorCode != tc.code || resp.Message == "" {
				t.Fatalf("unexpected envelope %+v", resp)
			}
			if tc.code == "VALIDATION_FAILED" && resp.Errors["goals"] == "" {
				t.Fatalf("expected field errors, got %+v", resp.Errors)
			}
		})
	}
}

func TestLinkRoutes(t *testing.T) {
	t.Parallel()

	slotStart := testNow.Add(24 * time.Hour)
	slot := application.Slot{Start: slotStart, End: slotStart.Add(30 * time.Minute), Duration: 30, MeetingType: application.MeetingTypeVirtual, ReasonToken: "r1"}

	t.Run("anonymous viewers resolve a permanent link", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.links.view = application.LinkView{
			Owner:          application.OwnerSummary{Name: "Olivia", Username: "olivia", DefaultDuration: 30},
			AvailableSlots: []application.Slot{slot},
		}

		rec := ts.do(t, http.MethodGet, "/v1/links/olivia", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ts.links.lastRef.Username != "olivia" || ts.links.lastViewer.SignedIn() {
			t.Fatalf("unexpected resolve call %+v %+v", ts.links.lastRef, ts.links.lastViewer)
		}
		resp := decode[linkViewResponse](t, rec)
		if resp.SignedIn || len(resp.AvailableSlots) != 1 || resp.PreferredSlot != nil {
			t.Fatalf("unexpected view %+v", resp)
		}
		if resp.AvailableSlots[0].Start != slotStart.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected slot start %q", resp.AvailableSlots[0].Start)
		}
	})

	t.Run("share links resolve by token for signed-in viewers", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.links.view = application.LinkView{SignedIn: true, PreferredSlot: &slot, AlgorithmReason: "fewest conflicts"}

		rec := ts.do(t, http.MethodGet, "/v1/share/tok-1", bearer(t, guestP), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ts.links.lastRef.ShareToken != "tok-1" || ts.links.lastViewer != guestP {
			t.Fatalf("unexpected resolve call %+v %+v", ts.links.lastRef, ts.links.lastViewer)
		}
		if resp := decode[linkViewResponse](t, rec); resp.PreferredSlot == nil || resp.AlgorithmReason == "" {
			t.Fatalf("expected preferred slot and reason, got %+v", resp)
		}
	})

	t.Run("confirm forwards the chosen slot", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.links.booking = application.Booking{Token: "b-1", StartAt: slot.Start, EndAt: slot.End, Status: application.BookingConfirmed}

		body := `{"slot_start":"` + slot.Start.Format(time.RFC3339) + `","slot_end":"` + slot.End.Format(time.RFC3339) +
			`","guest_name":" Gus ","guest_email":"guest@example.com","idempotency_key":"k1"}`
		rec := ts.do(t, http.MethodPost, "/v1/links/olivia/book", "", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		in := ts.links.lastInput
		if !in.SlotStart.Equal(slot.Start) || in.GuestName != "Gus" || in.IdempotencyKey != "k1" {
			t.Fatalf("unexpected confirm input %+v", in)
		}
		if resp := decode[bookingResponse](t, rec); resp.Booking.Token != "b-1" {
			t.Fatalf("unexpected booking %+v", resp.Booking)
		}
	})

	t.Run("link failures map to not found and gone", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		ts.links.err = application.ErrLinkNotFound
		if rec := ts.do(t, http.MethodGet, "/v1/share/missing", "", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		ts.links.err = application.ErrLinkExpired
		if rec := ts.do(t, http.MethodPost, "/v1/share/used/book", "", `{}`); rec.Code != http.StatusGone {
			t.Fatalf("expected 410, got %d", rec.Code)
		}
	})

	t.Run("issuing a share link requires sign in", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		expires := testNow.Add(7 * 24 * time.Hour)
		ts.links.share = application.ShareLink{Token: "tok-9", OwnerID: ownerP.UserID, ExpiresAt: &expires}

		if rec := ts.do(t, http.MethodPost, "/v1/share", "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		rec := ts.do(t, http.MethodPost, "/v1/share", bearer(t, ownerP), "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		if resp := decode[shareLinkResponse](t, rec); resp.URL != "https://pods.example.com/share/tok-9" || resp.ExpiresAt == "" {
			t.Fatalf("unexpected share link %+v", resp)
		}
	})
}

func TestBookingRoutes(t *testing.T) {
	t.Parallel()

	booking := application.Booking{Token: "b-1", OwnerID: ownerP.UserID, GuestName: "Gus", Status: application.BookingConfirmed, StartAt: testNow}

	t.Run("anonymous viewers see the booking with a signup prompt", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.bookings.view = application.BookingView{Booking: booking, Role: application.RoleAnonymous, ShowSignupCTA: true}

		rec := ts.do(t, http.MethodGet, "/v1/bookings/b-1", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode[bookingViewResponse](t, rec)
		if resp.Viewer.Role != "anonymous" || !resp.Viewer.ShowSignupCTA || resp.Booking.Token != "b-1" {
			t.Fatalf("unexpected view %+v", resp)
		}
	})

	t.Run("mutations require sign in", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)

		for _, path := range []string{"/v1/bookings/b-1/reschedule", "/v1/bookings/b-1/cancel"} {
			if rec := ts.do(t, http.MethodPost, path, "", ""); rec.Code != http.StatusUnauthorized {
				t.Fatalf("%s: expected 401, got %d", path, rec.Code)
			}
		}
		if rec := ts.do(t, http.MethodPatch, "/v1/bookings/b-1/notes", "", `{"notes":"x"}`); rec.Code != http.StatusUnauthorized {
			t.Fatalf("notes: expected 401, got %d", rec.Code)
		}
	})

	t.Run("reschedule answers with the new link", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.bookings.result = application.RescheduleResult{
			Booking: booking,
			Link:    application.ShareLink{Token: "tok-2"},
			Message: "pick a new time",
		}

		rec := ts.do(t, http.MethodPost, "/v1/bookings/b-1/reschedule", bearer(t, guestP), "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode[rescheduleResponse](t, rec)
		if resp.RescheduleLink != "https://pods.example.com/share/tok-2" || resp.Message == "" {
			t.Fatalf("unexpected reschedule response %+v", resp)
		}
	})

	t.Run("canceled bookings conflict", func(t *testing.T) {
		t.Parallel()
		ts := newTestServer(t)
		ts.bookings.err = application.ErrBookingCanceled

		rec := ts.do(t, http.MethodPatch, "/v1/bookings/b-1/notes", bearer(t, ownerP), `{"notes":"late"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		if ts.bookings.lastNotes != "late" {
			t.Fatalf("notes not forwarded")
		}
	})
}

func TestUnknownRoutes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodGet, "/v2/anything", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPut, "/v1/bookings/b-1/cancel", bearer(t, ownerP), ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
