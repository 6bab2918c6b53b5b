package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/example/podcoord/internal/logging"
	"github.com/example/podcoord/internal/negotiation"
)

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:  "book",
		Usage: "Open a scheduling link and book a slot",
		Description: "Signed-in viewers get a one minute countdown on the preferred slot.\n" +
			"Commands on stdin: p pauses or resumes, c confirms now, a number books that alternative.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:8080",
				Usage:   "Base URL of the podcoord API",
				Sources: cli.EnvVars("PODCOORD_SERVER"),
			},
			&cli.StringFlag{Name: "username", Usage: "Permanent link owner"},
			&cli.StringFlag{Name: "share", Usage: "Single-use link token"},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token; omit to book anonymously",
				Sources: cli.EnvVars("PODCOORD_TOKEN"),
			},
			&cli.StringFlag{Name: "guest-name", Usage: "Name for anonymous bookings"},
			&cli.StringFlag{Name: "guest-email", Usage: "Email for anonymous bookings"},
			&cli.IntFlag{Name: "slot", Usage: "Index of the slot for anonymous bookings"},
			&cli.DurationFlag{Name: "timeout", Value: 15 * time.Second, Usage: "Per-request timeout"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ref := negotiation.LinkRef{Username: command.String("username"), ShareToken: command.String("share")}
			if ref.Username == "" && ref.ShareToken == "" {
				return errors.New("one of --username or --share is required")
			}
			logger, err := logging.New(logging.EnvLocal, os.Stderr)
			if err != nil {
				return err
			}

			client := negotiation.NewLinkClient(command.String("server"), command.String("token"), command.Duration("timeout"), logger)
			return runBook(ctx, bookOptions{
				client: client,
				ref:    ref,
				guest:  negotiation.Guest{Name: command.String("guest-name"), Email: command.String("guest-email")},
				slot:   int(command.Int("slot")),
				in:     os.Stdin,
				out:    os.Stdout,
				logger: logger,
			})
		},
	}
}

type linkClient interface {
	negotiation.Confirmer
	Resolve(ctx context.Context, ref negotiation.LinkRef) (negotiation.LinkView, error)
}

type bookOptions struct {
	client    linkClient
	ref       negotiation.LinkRef
	guest     negotiation.Guest
	slot      int
	in        io.Reader
	out       io.Writer
	logger    *slog.Logger
	newTicker negotiation.NewTickerFunc
	now       func() time.Time
}

func runBook(ctx context.Context, opts bookOptions) error {
	if opts.now == nil {
		opts.now = time.Now
	}
	view, err := opts.client.Resolve(ctx, opts.ref)
	if err != nil {
		return err
	}

	printer := &slotPrinter{out: opts.out, now: opts.now}
	printer.header(view)

	session := negotiation.NewSession(ctx, opts.client, opts.ref, view, negotiation.Options{
		NewTicker: opts.newTicker,
		OnTick:    printer.tick,
		Logger:    opts.logger,
	})
	defer session.Close()

	if !view.SignedIn {
		return bookAnonymously(ctx, session, view, opts, printer)
	}
	if _, ok := session.Preferred(); !ok {
		return errors.New(firstNonEmpty(view.Message, "no slots available"))
	}

	go readCommands(ctx, session, view, opts.in, printer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-session.Done():
		booking, _ := session.Booking()
		printer.booked(booking)
		return nil
	}
}

func bookAnonymously(ctx context.Context, session *negotiation.Session, view negotiation.LinkView, opts bookOptions, printer *slotPrinter) error {
	if len(view.AvailableSlots) == 0 {
		return errors.New(firstNonEmpty(view.Message, "no slots available"))
	}
	if opts.slot < 0 || opts.slot >= len(view.AvailableSlots) {
		return fmt.Errorf("slot index %d out of range 0..%d", opts.slot, len(view.AvailableSlots)-1)
	}
	if err := session.Select(view.AvailableSlots[opts.slot].Start); err != nil {
		return err
	}
	booking, err := session.Confirm(ctx, opts.guest)
	if err != nil {
		return err
	}
	printer.booked(booking)
	return nil
}

func readCommands(ctx context.Context, session *negotiation.Session, view negotiation.LinkView, in io.Reader, printer *slotPrinter) {
	if in == nil {
		return
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.EqualFold(line, "p"):
			if session.Toggle() {
				printer.linef("paused at %ds", session.Remaining())
			} else {
				printer.linef("resumed")
			}
		case strings.EqualFold(line, "c"):
			if _, err := session.Confirm(ctx, negotiation.Guest{}); err != nil {
				printer.linef("confirm failed: %v", err)
			}
		default:
			idx, err := strconv.Atoi(line)
			if err != nil || idx < 1 || idx > len(view.AlternativeSlots) {
				printer.linef("unknown command %q", line)
				continue
			}
			if _, err := session.ChooseAlternative(ctx, view.AlternativeSlots[idx-1]); err != nil {
				printer.linef("booking alternative failed: %v", err)
			}
		}
	}
}

type slotPrinter struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func (p *slotPrinter) header(view negotiation.LinkView) {
	p.linef("Meet with %s (%d min)", firstNonEmpty(view.Owner.Name, view.Owner.Username), view.Owner.DefaultDuration)
	if view.AlgorithmReason != "" {
		p.linef("  %s", view.AlgorithmReason)
	}
	if view.SignedIn {
		if view.PreferredSlot != nil {
			p.linef("Preferred: %s", p.describe(*view.PreferredSlot))
		}
		for i, slot := range view.AlternativeSlots {
			p.linef("  [%d] %s", i+1, p.describe(slot))
		}
		return
	}
	for i, slot := range view.AvailableSlots {
		p.linef("  [%d] %s", i, p.describe(slot))
	}
}

func (p *slotPrinter) describe(slot negotiation.Slot) string {
	label := slot.Label
	if label == "" {
		label = slot.Start.Local().Format("Mon Jan 2 15:04")
	}
	return fmt.Sprintf("%s, %s (%s)", label, slot.MeetingType, humanize.RelTime(slot.Start, p.now(), "ago", "from now"))
}

func (p *slotPrinter) tick(remaining int) {
	if remaining > 0 && remaining%10 != 0 && remaining > 5 {
		return
	}
	p.linef("booking preferred slot in %ds", remaining)
}

func (p *slotPrinter) booked(booking negotiation.Booking) {
	p.linef("Booked %s at %s (%s)", booking.Token, booking.StartAt.Local().Format(time.RFC1123), booking.Status)
}

func (p *slotPrinter) linef(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
