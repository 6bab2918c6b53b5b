package coordination

import "strings"

// JoinOutcome describes what a join request changed.
type JoinOutcome string

const (
	JoinJoined        JoinOutcome = "joined"
	JoinAlreadyJoined JoinOutcome = "already_joined"
	JoinPodClosed     JoinOutcome = "pod_closed"
)

// NormalizeEmail is the identity used for invite comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func indexOfEmail(list []string, email string) int {
	target := NormalizeEmail(email)
	if target == "" {
		return -1
	}
	for i, candidate := range list {
		if NormalizeEmail(candidate) == target {
			return i
		}
	}
	return -1
}

// IsInvitee reports whether email is on the invite list.
func (p Pod) IsInvitee(email string) bool {
	return indexOfEmail(p.InviteEmails, email) >= 0
}

// HasJoined reports whether email has exercised its invite.
func (p Pod) HasJoined(email string) bool {
	return indexOfEmail(p.InviteJoinedEmails, email) >= 0
}

// AllInviteesJoined is the gate for starting a hunt: true when there are no invites
// or every invited email is present in the joined list.
func (p Pod) AllInviteesJoined() bool {
	for _, email := range p.InviteEmails {
		if !p.HasJoined(email) {
			return false
		}
	}
	return true
}

// AddInvites appends emails not already invited and returns the ones added.
// The first-seen spelling of an address is kept.
func (p *Pod) AddInvites(emails ...string) []string {
	var added []string
	for _, email := range emails {
		trimmed := strings.TrimSpace(email)
		if trimmed == "" || p.IsInvitee(trimmed) {
			continue
		}
		p.InviteEmails = append(p.InviteEmails, trimmed)
		added = append(added, trimmed)
	}
	return added
}

// RemoveInvite revokes an invite along with any membership it granted.
// It reports whether the invite list changed.
func (p *Pod) RemoveInvite(email string) bool {
	idx := indexOfEmail(p.InviteEmails, email)
	if idx < 0 {
		return false
	}
	p.InviteEmails = append(p.InviteEmails[:idx:idx], p.InviteEmails[idx+1:]...)
	if j := indexOfEmail(p.InviteJoinedEmails, email); j >= 0 {
		p.InviteJoinedEmails = append(p.InviteJoinedEmails[:j:j], p.InviteJoinedEmails[j+1:]...)
	}
	return true
}

// Join records membership for email. Closed pods and repeat joins are no-ops.
// Meeting pods additionally require the joiner's calendar to be connected.
func (p *Pod) Join(email string, calendarConnected bool) (JoinOutcome, error) {
	if p.IsClosed() {
		return JoinPodClosed, nil
	}
	if p.HasJoined(email) {
		return JoinAlreadyJoined, nil
	}
	idx := indexOfEmail(p.InviteEmails, email)
	if idx < 0 {
		return "", ErrNotInvited
	}
	if p.Type == PodTypeMeeting && !calendarConnected {
		return "", ErrCalendarNotConnected
	}
	p.InviteJoinedEmails = append(p.InviteJoinedEmails, p.InviteEmails[idx])
	return JoinJoined, nil
}
