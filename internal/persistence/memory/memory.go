// Package memory provides map-backed repositories for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/podcoord/internal/persistence"
)

// Storage keeps every record in process memory behind one lock.
type Storage struct {
	mu         sync.RWMutex
	pods       map[string]persistence.Pod
	accounts   map[string]persistence.Account
	shareLinks map[string]persistence.ShareLink
	bookings   map[string]persistence.Booking
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		pods:       make(map[string]persistence.Pod),
		accounts:   make(map[string]persistence.Account),
		shareLinks: make(map[string]persistence.ShareLink),
		bookings:   make(map[string]persistence.Booking),
	}
}

// Close is a no-op for the in-memory implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate is a no-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// --- PodRepository implementation ---

// CreatePod stores a new pod with its goals.
func (s *Storage) CreatePod(ctx context.Context, pod persistence.Pod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pod.Token == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.pods[pod.Token]; ok {
		return fmt.Errorf("memory: pod %s already exists: %w", pod.Token, persistence.ErrConflict)
	}

	s.pods[pod.Token] = clonePod(pod)
	return nil
}

// UpdatePod replaces a stored pod and its goal set. Owner and creation time are immutable.
func (s *Storage) UpdatePod(ctx context.Context, pod persistence.Pod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pods[pod.Token]
	if !ok {
		return persistence.ErrNotFound
	}

	pod.OwnerID = existing.OwnerID
	pod.CreatedAt = existing.CreatedAt
	s.pods[pod.Token] = clonePod(pod)
	return nil
}

// GetPod retrieves a pod by token.
func (s *Storage) GetPod(ctx context.Context, token string) (persistence.Pod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pod, ok := s.pods[token]
	if !ok {
		return persistence.Pod{}, persistence.ErrNotFound
	}
	return clonePod(pod), nil
}

// ListPodsForMember returns pods owned by userID or inviting email, newest first.
func (s *Storage) ListPodsForMember(ctx context.Context, userID, email string) ([]persistence.Pod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pods := make([]persistence.Pod, 0)
	for _, pod := range s.pods {
		if (userID != "" && pod.OwnerID == userID) || containsFold(pod.InviteEmails, email) {
			pods = append(pods, clonePod(pod))
		}
	}

	sort.Slice(pods, func(i, j int) bool {
		if pods[i].CreatedAt.Equal(pods[j].CreatedAt) {
			return pods[i].Token < pods[j].Token
		}
		return pods[i].CreatedAt.After(pods[j].CreatedAt)
	})
	return pods, nil
}

// DeletePod removes a pod and, with it, its goals.
func (s *Storage) DeletePod(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pods[token]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.pods, token)
	return nil
}

// --- AccountRepository implementation ---

// UpsertAccount creates or replaces an account. Usernames and emails stay unique.
func (s *Storage) UpsertAccount(ctx context.Context, account persistence.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		return persistence.ErrConstraintViolation
	}
	for id, other := range s.accounts {
		if id == account.ID {
			continue
		}
		if strings.EqualFold(other.Username, account.Username) || strings.EqualFold(other.Email, account.Email) {
			return fmt.Errorf("memory: account %s clashes with %s: %w", account.ID, id, persistence.ErrConflict)
		}
	}
	if existing, ok := s.accounts[account.ID]; ok {
		account.CreatedAt = existing.CreatedAt
	}

	s.accounts[account.ID] = account
	return nil
}

// GetAccount retrieves an account by id.
func (s *Storage) GetAccount(ctx context.Context, id string) (persistence.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return persistence.Account{}, persistence.ErrNotFound
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username, ignoring case.
func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (persistence.Account, error) {
	return s.findAccount(func(a persistence.Account) bool {
		return strings.EqualFold(a.Username, username)
	})
}

// GetAccountByEmail retrieves an account by email, ignoring case.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (persistence.Account, error) {
	return s.findAccount(func(a persistence.Account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

func (s *Storage) findAccount(match func(persistence.Account) bool) (persistence.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if match(account) {
			return account, nil
		}
	}
	return persistence.Account{}, persistence.ErrNotFound
}

// --- ShareLinkRepository implementation ---

// CreateShareLink stores a new share link.
func (s *Storage) CreateShareLink(ctx context.Context, link persistence.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if link.Token == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.shareLinks[link.Token]; ok {
		return fmt.Errorf("memory: share link %s already exists: %w", link.Token, persistence.ErrConflict)
	}
	s.shareLinks[link.Token] = cloneShareLink(link)
	return nil
}

// GetShareLink retrieves a share link by token.
func (s *Storage) GetShareLink(ctx context.Context, token string) (persistence.ShareLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link, ok := s.shareLinks[token]
	if !ok {
		return persistence.ShareLink{}, persistence.ErrNotFound
	}
	return cloneShareLink(link), nil
}

// --- BookingRepository implementation ---

// CreateBooking stores a new booking. Idempotency keys are unique per link.
func (s *Storage) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBookingLocked(booking)
}

// CreateShareLinkBooking consumes the share link and stores the booking under one lock.
func (s *Storage) CreateShareLinkBooking(ctx context.Context, shareToken string, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.shareLinks[shareToken]
	if !ok {
		return persistence.ErrNotFound
	}
	if link.UsedAt != nil {
		return persistence.ErrConflict
	}
	if err := s.createBookingLocked(booking); err != nil {
		return err
	}
	usedAt := booking.CreatedAt
	link.UsedAt = &usedAt
	s.shareLinks[shareToken] = link
	return nil
}

func (s *Storage) createBookingLocked(booking persistence.Booking) error {
	if booking.Token == "" {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.bookings[booking.Token]; ok {
		return fmt.Errorf("memory: booking %s already exists: %w", booking.Token, persistence.ErrConflict)
	}
	if booking.IdempotencyKey != nil {
		if _, err := s.findByKeyLocked(booking.LinkIdentifier, *booking.IdempotencyKey); err == nil {
			return fmt.Errorf("memory: idempotency key reused: %w", persistence.ErrConflict)
		}
	}
	s.bookings[booking.Token] = cloneBooking(booking)
	return nil
}

// UpdateBooking replaces a stored booking.
func (s *Storage) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bookings[booking.Token]
	if !ok {
		return persistence.ErrNotFound
	}
	booking.CreatedAt = existing.CreatedAt
	s.bookings[booking.Token] = cloneBooking(booking)
	return nil
}

// GetBooking retrieves a booking by token.
func (s *Storage) GetBooking(ctx context.Context, token string) (persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, ok := s.bookings[token]
	if !ok {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	return cloneBooking(booking), nil
}

// FindBookingByIdempotencyKey returns the booking made through a link with the given key.
func (s *Storage) FindBookingByIdempotencyKey(ctx context.Context, linkIdentifier, key string) (persistence.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByKeyLocked(linkIdentifier, key)
}

func (s *Storage) findByKeyLocked(linkIdentifier, key string) (persistence.Booking, error) {
	for _, booking := range s.bookings {
		if booking.LinkIdentifier == linkIdentifier && booking.IdempotencyKey != nil && *booking.IdempotencyKey == key {
			return cloneBooking(booking), nil
		}
	}
	return persistence.Booking{}, persistence.ErrNotFound
}

// --- Helpers ---

func clonePod(pod persistence.Pod) persistence.Pod {
	out := pod
	out.InviteEmails = cloneStrings(pod.InviteEmails)
	out.InviteJoinedEmails = cloneStrings(pod.InviteJoinedEmails)
	out.Goals = make([]persistence.Goal, len(pod.Goals))
	for i, goal := range pod.Goals {
		goal.PodToken = pod.Token
		goal.Value = cloneStringPtr(goal.Value)
		out.Goals[i] = goal
	}
	sort.SliceStable(out.Goals, func(i, j int) bool {
		return out.Goals[i].Position < out.Goals[j].Position
	})
	return out
}

func cloneShareLink(link persistence.ShareLink) persistence.ShareLink {
	out := link
	out.ExpiresAt = cloneTimePtr(link.ExpiresAt)
	out.UsedAt = cloneTimePtr(link.UsedAt)
	out.OriginBooking = cloneStringPtr(link.OriginBooking)
	return out
}

func cloneBooking(booking persistence.Booking) persistence.Booking {
	out := booking
	out.GuestID = cloneStringPtr(booking.GuestID)
	out.IdempotencyKey = cloneStringPtr(booking.IdempotencyKey)
	return out
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneTimePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func containsFold(values []string, target string) bool {
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(target)) {
			return true
		}
	}
	return false
}
