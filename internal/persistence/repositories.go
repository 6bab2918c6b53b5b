package persistence

import "context"

// PodRepository stores pods together with their goals.
type PodRepository interface {
	CreatePod(ctx context.Context, pod Pod) error
	// UpdatePod replaces the pod row and its full goal set.
	UpdatePod(ctx context.Context, pod Pod) error
	GetPod(ctx context.Context, token string) (Pod, error)
	// ListPodsForMember returns pods owned by userID or inviting email (case-insensitive).
	ListPodsForMember(ctx context.Context, userID, email string) ([]Pod, error)
	DeletePod(ctx context.Context, token string) error
}

// AccountRepository exposes the account directory.
type AccountRepository interface {
	UpsertAccount(ctx context.Context, account Account) error
	GetAccount(ctx context.Context, id string) (Account, error)
	GetAccountByUsername(ctx context.Context, username string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
}

// ShareLinkRepository stores single-use links.
type ShareLinkRepository interface {
	CreateShareLink(ctx context.Context, link ShareLink) error
	GetShareLink(ctx context.Context, token string) (ShareLink, error)
}

// BookingRepository stores bookings.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	// CreateShareLinkBooking consumes the share link (used at booking.CreatedAt) and
	// stores the booking atomically: ErrNotFound for an unknown link, ErrConflict for
	// a used link or a clashing booking. On error neither write is kept.
	CreateShareLinkBooking(ctx context.Context, shareToken string, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, token string) (Booking, error)
	FindBookingByIdempotencyKey(ctx context.Context, linkIdentifier, key string) (Booking, error)
}

// Store bundles every repository behind one storage backend.
type Store interface {
	PodRepository
	AccountRepository
	ShareLinkRepository
	BookingRepository
	Migrate(ctx context.Context) error
	Close() error
}
