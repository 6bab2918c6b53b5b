// Package notify delivers booking notifications to owners and guests.
package notify

import (
	"bytes"
	"context"
	"errors"
	htmltemplate "html/template"
	"io"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/logging"
)

// SendFunc delivers a composed message.
type SendFunc func(ctx context.Context, msg Message) error

// Mailer emails both sides of a booking.
type Mailer struct {
	from    string
	baseURL string
	send    SendFunc
	now     func() time.Time
	log     *slog.Logger
}

var _ application.Notifier = (*Mailer)(nil)

// NewSMTPMailer returns a mailer that relays through server.
func NewSMTPMailer(server SMTPServer, from, baseURL string, logger *slog.Logger) *Mailer {
	return NewMailer(from, baseURL, func(_ context.Context, msg Message) error {
		return Send(server, msg)
	}, logger)
}

// NewMailer returns a mailer using send for delivery.
func NewMailer(from, baseURL string, send SendFunc, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mailer{
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		send:    send,
		now:     time.Now,
		log:     logger.With(logging.Module("notify")),
	}
}

// BookingConfirmed tells the owner and the guest that the meeting is booked.
func (m *Mailer) BookingConfirmed(ctx context.Context, booking application.Booking, owner application.Account) error {
	return m.deliver(ctx, "Booking confirmed", booking, owner, confirmedTemplate, nil)
}

// BookingCanceled tells both sides the meeting is off.
func (m *Mailer) BookingCanceled(ctx context.Context, booking application.Booking, owner application.Account) error {
	return m.deliver(ctx, "Booking canceled", booking, owner, canceledTemplate, nil)
}

// RescheduleRequested sends the replacement link to both sides.
func (m *Mailer) RescheduleRequested(ctx context.Context, booking application.Booking, owner application.Account, link application.ShareLink) error {
	return m.deliver(ctx, "Reschedule requested", booking, owner, rescheduleTemplate, &link)
}

type mailData struct {
	Subject     string
	OwnerName   string
	GuestName   string
	When        string
	MeetingType string
	BookingURL  string
	LinkURL     string
	LinkExpires string
}

func (m *Mailer) deliver(ctx context.Context, subject string, booking application.Booking, owner application.Account, tmpl mailTemplate, link *application.ShareLink) error {
	recipients := recipients(owner.Email, booking.GuestEmail)
	if len(recipients) == 0 {
		m.log.WarnContext(ctx, "no recipients for booking notification", slog.String("booking_token", booking.Token))
		return nil
	}

	data := mailData{
		Subject:     subject,
		OwnerName:   firstNonEmpty(owner.Name, owner.Username, booking.OwnerUsername),
		GuestName:   firstNonEmpty(booking.GuestName, booking.GuestEmail),
		When:        booking.StartAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST") + " - " + booking.EndAt.UTC().Format("15:04 MST"),
		MeetingType: string(booking.MeetingType),
		BookingURL:  m.baseURL + "/bookings/" + booking.Token,
	}
	if link != nil {
		data.LinkURL = m.baseURL + "/share/" + link.Token
		if link.ExpiresAt != nil {
			data.LinkExpires = humanize.RelTime(*link.ExpiresAt, m.now(), "ago", "from now")
		}
	}

	msg, err := compose(m.from, recipients, data, tmpl)
	if err != nil {
		return err
	}
	if err := m.send(ctx, msg); err != nil {
		return err
	}
	m.log.InfoContext(ctx, "booking notification sent",
		slog.String("booking_token", booking.Token),
		slog.String("subject", subject),
		slog.Int("recipients", len(recipients)))
	return nil
}

type mailTemplate struct {
	text *template.Template
	html *htmltemplate.Template
}

func compose(from string, to []string, data mailData, tmpl mailTemplate) (Message, error) {
	text := bytes.NewBuffer(nil)
	if err := tmpl.text.Execute(text, data); err != nil {
		return Message{}, err
	}
	html := bytes.NewBuffer(nil)
	if err := tmpl.html.Execute(html, data); err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      to,
		Subject: data.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func recipients(addresses ...string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		key := strings.ToLower(strings.TrimSpace(address))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(address))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func newMailTemplate(name, text, html string) mailTemplate {
	return mailTemplate{
		text: template.Must(template.New(name).Parse(text)),
		html: htmltemplate.Must(htmltemplate.New(name).Parse(html)),
	}
}

var confirmedTemplate = newMailTemplate("confirmed",
	`{{.GuestName}} and {{.OwnerName}} are meeting on {{.When}}{{if .MeetingType}} ({{.MeetingType}}){{end}}.

Manage the booking: {{.BookingURL}}
`,
	`<p>{{.GuestName}} and {{.OwnerName}} are meeting on <b>{{.When}}</b>{{if .MeetingType}} ({{.MeetingType}}){{end}}.</p>
<p><a href="{{.BookingURL}}">Manage the booking</a></p>
`)

var canceledTemplate = newMailTemplate("canceled",
	`The meeting between {{.GuestName}} and {{.OwnerName}} on {{.When}} was canceled.
`,
	`<p>The meeting between {{.GuestName}} and {{.OwnerName}} on <b>{{.When}}</b> was canceled.</p>
`)

var rescheduleTemplate = newMailTemplate("reschedule",
	`The meeting between {{.GuestName}} and {{.OwnerName}} on {{.When}} needs a new time.

Pick one here: {{.LinkURL}}{{if .LinkExpires}} (expires {{.LinkExpires}}){{end}}
`,
	`<p>The meeting between {{.GuestName}} and {{.OwnerName}} on <b>{{.When}}</b> needs a new time.</p>
<p><a href="{{.LinkURL}}">Pick a new time</a>{{if .LinkExpires}} (expires {{.LinkExpires}}){{end}}</p>
`)

// LogNotifier records notifications in the log instead of sending them.
type LogNotifier struct {
	log *slog.Logger
}

var _ application.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogNotifier{log: logger.With(logging.Module("notify"))}
}

func (n *LogNotifier) BookingConfirmed(ctx context.Context, booking application.Booking, owner application.Account) error {
	return n.record(ctx, "booking confirmed", booking, owner)
}

func (n *LogNotifier) BookingCanceled(ctx context.Context, booking application.Booking, owner application.Account) error {
	return n.record(ctx, "booking canceled", booking, owner)
}

func (n *LogNotifier) RescheduleRequested(ctx context.Context, booking application.Booking, owner application.Account, link application.ShareLink) error {
	return n.record(ctx, "reschedule requested", booking, owner, slog.String("share_token", link.Token))
}

func (n *LogNotifier) record(ctx context.Context, msg string, booking application.Booking, owner application.Account, attrs ...any) error {
	if booking.Token == "" {
		return errors.New("notify: booking token is empty")
	}
	attrs = append(attrs,
		slog.String("booking_token", booking.Token),
		slog.String("owner_id", owner.ID),
		slog.String("guest_email", booking.GuestEmail),
		slog.Time("start_at", booking.StartAt),
	)
	n.log.InfoContext(ctx, msg, attrs...)
	return nil
}
