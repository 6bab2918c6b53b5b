package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/example/podcoord/internal/application"
	"github.com/example/podcoord/internal/config"
	httptransport "github.com/example/podcoord/internal/http"
	"github.com/example/podcoord/internal/logging"
	"github.com/example/podcoord/internal/persistence"
)

func main() {
	app := &cli.Command{
		Name:  "podcoord",
		Usage: "Coordination pods and scheduling links",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to an optional YAML configuration file",
				Sources: cli.EnvVars("PODCOORD_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			bookCommand(),
			accountCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// accountCommand registers or updates a directory entry. Accounts come from the
// identity provider in production; this is how local setups get one.
func accountCommand() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Create or update an account in the directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true, Usage: "Account id (the token subject)"},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "username", Required: true, Usage: "Public scheduling link name"},
			&cli.StringFlag{Name: "name", Usage: "Display name"},
			&cli.BoolFlag{Name: "calendar", Value: true, Usage: "Whether the calendar is connected"},
			&cli.StringFlag{Name: "meeting-type", Value: string(application.MeetingTypeVirtual)},
			&cli.IntFlag{Name: "duration", Value: 30, Usage: "Default meeting length in minutes"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, os.Stderr)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore(store, logger)

			now := time.Now().UTC()
			account := persistence.Account{
				ID:                 command.String("id"),
				Email:              command.String("email"),
				Username:           command.String("username"),
				Name:               command.String("name"),
				CalendarConnected:  command.Bool("calendar"),
				DefaultMeetingType: command.String("meeting-type"),
				DefaultDuration:    int(command.Int("duration")),
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := store.UpsertAccount(ctx, account); err != nil {
				return fmt.Errorf("save account: %w", err)
			}
			logger.Info("account saved", "account_id", account.ID, "username", account.Username)
			return nil
		},
	}
}

// tokenCommand signs a bearer token for local testing.
func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Sign a bearer token for an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Required: true, Usage: "Account id"},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "name"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}
			token, err := httptransport.SignToken([]byte(cfg.Auth.JWTSecret), application.Principal{
				UserID: command.String("id"),
				Email:  command.String("email"),
				Name:   command.String("name"),
			}, time.Now(), command.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}
}
