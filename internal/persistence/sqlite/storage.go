// Package sqlite implements persistence.Store on top of modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/podcoord/internal/persistence"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Storage is a SQLite backed persistence.Store.
type Storage struct {
	db  *sql.DB
	cfg Config
}

var _ persistence.Store = (*Storage)(nil)

// Open connects to the database described by cfg. Call Migrate before use.
func Open(cfg Config) (*Storage, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db, cfg: cfg}, nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- PodRepository implementation ---

// CreatePod inserts a pod with its invites and goals.
func (s *Storage) CreatePod(ctx context.Context, pod persistence.Pod) error {
	if pod.Token == "" || pod.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pods (token, type, status, description, owner_id, hunt_error, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pod.Token, pod.Type, pod.Status, pod.Description, pod.OwnerID, pod.HuntError,
			formatTime(pod.CreatedAt), formatTime(pod.UpdatedAt),
		)
		if err != nil {
			return err
		}
		return writePodChildren(ctx, tx, pod)
	})
}

// UpdatePod replaces the mutable pod columns and its full invite and goal sets.
// Owner and creation time never change.
func (s *Storage) UpdatePod(ctx context.Context, pod persistence.Pod) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE pods SET type = ?, status = ?, description = ?, hunt_error = ?, updated_at = ?
			WHERE token = ?`,
			pod.Type, pod.Status, pod.Description, pod.HuntError, formatTime(pod.UpdatedAt), pod.Token,
		)
		if err != nil {
			return err
		}
		if err := requireRow(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM pod_invites WHERE pod_token = ?`, pod.Token); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM goals WHERE pod_token = ?`, pod.Token); err != nil {
			return err
		}
		return writePodChildren(ctx, tx, pod)
	})
}

// GetPod retrieves a pod by token.
func (s *Storage) GetPod(ctx context.Context, token string) (persistence.Pod, error) {
	pod, err := loadPod(ctx, s.db, token)
	return pod, mapError(err)
}

// ListPodsForMember returns pods owned by userID or inviting email, newest first.
func (s *Storage) ListPodsForMember(ctx context.Context, userID, email string) ([]persistence.Pod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token FROM pods
		WHERE (? <> '' AND owner_id = ?)
		   OR token IN (SELECT pod_token FROM pod_invites WHERE email_norm = ?)
		ORDER BY created_at DESC, token ASC`,
		userID, userID, normalizeEmail(email),
	)
	if err != nil {
		return nil, mapError(err)
	}
	tokens, err := scanStrings(rows)
	if err != nil {
		return nil, mapError(err)
	}

	pods := make([]persistence.Pod, 0, len(tokens))
	for _, token := range tokens {
		pod, err := loadPod(ctx, s.db, token)
		if err != nil {
			return nil, mapError(err)
		}
		pods = append(pods, pod)
	}
	return pods, nil
}

// DeletePod removes a pod with its invites and goals.
func (s *Storage) DeletePod(ctx context.Context, token string) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		for _, child := range []string{`DELETE FROM pod_invites WHERE pod_token = ?`, `DELETE FROM goals WHERE pod_token = ?`} {
			if _, err := tx.ExecContext(ctx, child, token); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM pods WHERE token = ?`, token)
		if err != nil {
			return err
		}
		return requireRow(result)
	})
}

func writePodChildren(ctx context.Context, q querier, pod persistence.Pod) error {
	joinedSeq := make(map[string]int, len(pod.InviteJoinedEmails))
	for i, email := range pod.InviteJoinedEmails {
		joinedSeq[normalizeEmail(email)] = i
	}

	for i, email := range pod.InviteEmails {
		var seq sql.NullInt64
		if n, ok := joinedSeq[normalizeEmail(email)]; ok {
			seq = sql.NullInt64{Int64: int64(n), Valid: true}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO pod_invites (pod_token, position, email, email_norm, joined_seq)
			VALUES (?, ?, ?, ?, ?)`,
			pod.Token, i, email, normalizeEmail(email), seq,
		)
		if err != nil {
			return err
		}
	}

	for _, goal := range pod.Goals {
		_, err := q.ExecContext(ctx, `
			INSERT INTO goals (id, pod_token, name, type, instructions, value, status, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			goal.ID, pod.Token, goal.Name, goal.Type, goal.Instructions, nullString(goal.Value), goal.Status, goal.Position,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadPod(ctx context.Context, q querier, token string) (persistence.Pod, error) {
	var (
		pod                  persistence.Pod
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT token, type, status, description, owner_id, hunt_error, created_at, updated_at
		FROM pods WHERE token = ?`, token,
	).Scan(&pod.Token, &pod.Type, &pod.Status, &pod.Description, &pod.OwnerID, &pod.HuntError, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Pod{}, err
	}
	if pod.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Pod{}, err
	}
	if pod.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Pod{}, err
	}

	if err := loadInvites(ctx, q, &pod); err != nil {
		return persistence.Pod{}, err
	}
	if err := loadGoals(ctx, q, &pod); err != nil {
		return persistence.Pod{}, err
	}
	return pod, nil
}

func loadInvites(ctx context.Context, q querier, pod *persistence.Pod) error {
	rows, err := q.QueryContext(ctx, `
		SELECT email, joined_seq FROM pod_invites WHERE pod_token = ? ORDER BY position`, pod.Token)
	if err != nil {
		return err
	}
	defer rows.Close()

	type joined struct {
		email string
		seq   int64
	}
	var joins []joined
	pod.InviteEmails = []string{}
	for rows.Next() {
		var (
			email string
			seq   sql.NullInt64
		)
		if err := rows.Scan(&email, &seq); err != nil {
			return err
		}
		pod.InviteEmails = append(pod.InviteEmails, email)
		if seq.Valid {
			joins = append(joins, joined{email: email, seq: seq.Int64})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Insertion sort keeps the join order; invite lists are small.
	for i := 1; i < len(joins); i++ {
		for j := i; j > 0 && joins[j].seq < joins[j-1].seq; j-- {
			joins[j], joins[j-1] = joins[j-1], joins[j]
		}
	}
	pod.InviteJoinedEmails = make([]string, len(joins))
	for i, j := range joins {
		pod.InviteJoinedEmails[i] = j.email
	}
	return nil
}

func loadGoals(ctx context.Context, q querier, pod *persistence.Pod) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, type, instructions, value, status, position
		FROM goals WHERE pod_token = ? ORDER BY position, id`, pod.Token)
	if err != nil {
		return err
	}
	defer rows.Close()

	pod.Goals = []persistence.Goal{}
	for rows.Next() {
		var (
			goal  persistence.Goal
			value sql.NullString
		)
		if err := rows.Scan(&goal.ID, &goal.Name, &goal.Type, &goal.Instructions, &value, &goal.Status, &goal.Position); err != nil {
			return err
		}
		goal.PodToken = pod.Token
		goal.Value = stringPtr(value)
		pod.Goals = append(pod.Goals, goal)
	}
	return rows.Err()
}

// --- AccountRepository implementation ---

// UpsertAccount creates or replaces an account, keeping its original creation time.
func (s *Storage) UpsertAccount(ctx context.Context, account persistence.Account) error {
	if account.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, email, username, name, calendar_connected, default_meeting_type, default_duration, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				email = excluded.email,
				username = excluded.username,
				name = excluded.name,
				calendar_connected = excluded.calendar_connected,
				default_meeting_type = excluded.default_meeting_type,
				default_duration = excluded.default_duration,
				updated_at = excluded.updated_at`,
			account.ID, account.Email, account.Username, account.Name, account.CalendarConnected,
			account.DefaultMeetingType, account.DefaultDuration,
			formatTime(account.CreatedAt), formatTime(account.UpdatedAt),
		)
		return err
	})
}

const accountColumns = `id, email, username, name, calendar_connected, default_meeting_type, default_duration, created_at, updated_at`

// GetAccount retrieves an account by id.
func (s *Storage) GetAccount(ctx context.Context, id string) (persistence.Account, error) {
	return s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
}

// GetAccountByUsername retrieves an account by username, ignoring case.
func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (persistence.Account, error) {
	return s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
}

// GetAccountByEmail retrieves an account by email, ignoring case.
func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (persistence.Account, error) {
	return s.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, strings.TrimSpace(email))
}

func (s *Storage) queryAccount(ctx context.Context, query string, arg string) (persistence.Account, error) {
	var (
		account              persistence.Account
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&account.ID, &account.Email, &account.Username, &account.Name, &account.CalendarConnected,
		&account.DefaultMeetingType, &account.DefaultDuration, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Account{}, mapError(err)
	}
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Account{}, err
	}
	if account.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Account{}, err
	}
	return account, nil
}

// --- ShareLinkRepository implementation ---

// CreateShareLink stores a new share link.
func (s *Storage) CreateShareLink(ctx context.Context, link persistence.ShareLink) error {
	if link.Token == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO share_links (token, owner_id, created_at, expires_at, used_at, origin_booking)
			VALUES (?, ?, ?, ?, ?, ?)`,
			link.Token, link.OwnerID, formatTime(link.CreatedAt),
			nullTime(link.ExpiresAt), nullTime(link.UsedAt), nullString(link.OriginBooking),
		)
		return err
	})
}

// GetShareLink retrieves a share link by token.
func (s *Storage) GetShareLink(ctx context.Context, token string) (persistence.ShareLink, error) {
	var (
		link              persistence.ShareLink
		createdAt         string
		expiresAt, usedAt sql.NullString
		originBooking     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, owner_id, created_at, expires_at, used_at, origin_booking
		FROM share_links WHERE token = ?`, token,
	).Scan(&link.Token, &link.OwnerID, &createdAt, &expiresAt, &usedAt, &originBooking)
	if err != nil {
		return persistence.ShareLink{}, mapError(err)
	}
	if link.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.ShareLink{}, err
	}
	if link.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return persistence.ShareLink{}, err
	}
	if link.UsedAt, err = parseNullTime(usedAt); err != nil {
		return persistence.ShareLink{}, err
	}
	link.OriginBooking = stringPtr(originBooking)
	return link, nil
}

// consumeShareLink marks the link used once; a second call reports ErrConflict.
func consumeShareLink(ctx context.Context, q querier, token string, usedAt time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE share_links SET used_at = ? WHERE token = ? AND used_at IS NULL`,
		formatTime(usedAt), token,
	)
	if err != nil {
		return err
	}
	if err := requireRow(result); err == nil {
		return nil
	}

	var exists int
	if err := q.QueryRowContext(ctx, `SELECT 1 FROM share_links WHERE token = ?`, token).Scan(&exists); err != nil {
		return mapError(err)
	}
	return persistence.ErrConflict
}

// --- BookingRepository implementation ---

const bookingColumns = `token, owner_id, owner_username, guest_id, guest_name, guest_email, start_at, end_at,
	meeting_type, status, notes, owner_slot_reason, booker_slot_reason, link_identifier, idempotency_key,
	created_at, updated_at`

// CreateBooking stores a new booking. Idempotency keys are unique per link.
func (s *Storage) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.Token == "" || booking.LinkIdentifier == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withRetry(ctx, func() error {
		return insertBooking(ctx, s.db, booking)
	})
}

// CreateShareLinkBooking consumes the share link and inserts the booking in one
// transaction. If either write fails the link stays usable.
func (s *Storage) CreateShareLinkBooking(ctx context.Context, shareToken string, booking persistence.Booking) error {
	if booking.Token == "" || booking.LinkIdentifier == "" {
		return persistence.ErrConstraintViolation
	}
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		if err := consumeShareLink(ctx, tx, shareToken, booking.CreatedAt); err != nil {
			return err
		}
		return insertBooking(ctx, tx, booking)
	})
}

func insertBooking(ctx context.Context, q querier, booking persistence.Booking) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.Token, booking.OwnerID, booking.OwnerUsername, nullString(booking.GuestID),
		booking.GuestName, booking.GuestEmail, formatTime(booking.StartAt), formatTime(booking.EndAt),
		booking.MeetingType, booking.Status, booking.Notes, booking.OwnerSlotReason, booking.BookerSlotReason,
		booking.LinkIdentifier, nullString(booking.IdempotencyKey),
		formatTime(booking.CreatedAt), formatTime(booking.UpdatedAt),
	)
	return err
}

// UpdateBooking replaces a stored booking, keeping its creation time.
func (s *Storage) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	return s.withTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE bookings SET
				guest_id = ?, guest_name = ?, guest_email = ?, start_at = ?, end_at = ?,
				meeting_type = ?, status = ?, notes = ?, owner_slot_reason = ?, booker_slot_reason = ?,
				updated_at = ?
			WHERE token = ?`,
			nullString(booking.GuestID), booking.GuestName, booking.GuestEmail,
			formatTime(booking.StartAt), formatTime(booking.EndAt),
			booking.MeetingType, booking.Status, booking.Notes, booking.OwnerSlotReason, booking.BookerSlotReason,
			formatTime(booking.UpdatedAt), booking.Token,
		)
		if err != nil {
			return err
		}
		return requireRow(result)
	})
}

// GetBooking retrieves a booking by token.
func (s *Storage) GetBooking(ctx context.Context, token string) (persistence.Booking, error) {
	return s.queryBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE token = ?`, token)
}

// FindBookingByIdempotencyKey returns the booking made through a link with the given key.
func (s *Storage) FindBookingByIdempotencyKey(ctx context.Context, linkIdentifier, key string) (persistence.Booking, error) {
	return s.queryBooking(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE link_identifier = ? AND idempotency_key = ?`,
		linkIdentifier, key)
}

func (s *Storage) queryBooking(ctx context.Context, query string, args ...any) (persistence.Booking, error) {
	var (
		b                                    persistence.Booking
		guestID, idempotencyKey              sql.NullString
		startAt, endAt, createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&b.Token, &b.OwnerID, &b.OwnerUsername, &guestID, &b.GuestName, &b.GuestEmail, &startAt, &endAt,
		&b.MeetingType, &b.Status, &b.Notes, &b.OwnerSlotReason, &b.BookerSlotReason, &b.LinkIdentifier,
		&idempotencyKey, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Booking{}, mapError(err)
	}
	b.GuestID = stringPtr(guestID)
	b.IdempotencyKey = stringPtr(idempotencyKey)
	for _, field := range []struct {
		raw string
		dst *time.Time
	}{
		{startAt, &b.StartAt},
		{endAt, &b.EndAt},
		{createdAt, &b.CreatedAt},
		{updatedAt, &b.UpdatedAt},
	} {
		if *field.dst, err = parseTime(field.raw); err != nil {
			return persistence.Booking{}, err
		}
	}
	return b, nil
}

// --- Helpers ---

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", raw, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	out := value.String
	return &out
}
