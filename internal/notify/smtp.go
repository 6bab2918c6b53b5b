package notify

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPServer describes the relay used for outgoing mail.
type SMTPServer struct {
	HostPort string
	// TLS dials with implicit TLS when set.
	TLS      *tls.Config
	User     string
	Password string
	Hello    string
}

func dial(server SMTPServer) (*smtp.Client, error) {
	var (
		client *smtp.Client
		err    error
	)
	if server.TLS != nil {
		client, err = smtp.DialTLS(server.HostPort, server.TLS)
	} else {
		client, err = smtp.Dial(server.HostPort)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to smtp server: %w", err)
	}

	if server.Hello != "" {
		if err := client.Hello(server.Hello); err != nil {
			client.Close()
			return nil, fmt.Errorf("could not greet upstream: %w", err)
		}
	}

	if server.User != "" || server.Password != "" {
		if err := client.Auth(sasl.NewPlainClient("", server.User, server.Password)); err != nil {
			client.Close()
			return nil, fmt.Errorf("AUTH failed: %w", err)
		}
	}
	return client, nil
}

// Send delivers msg through server.
func Send(server SMTPServer, msg Message) error {
	client, err := dial(server)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("smtp server rejected mail from '%s': %w", msg.From, err)
	}
	for _, address := range msg.To {
		if err := client.Rcpt(address, nil); err != nil {
			return fmt.Errorf("smtp server rejected mail to '%s': %w", address, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp server rejected request to send mail data: %w", err)
	}
	if err := msg.Write(writer); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp server rejected mail data: %w", err)
	}

	if err := client.Quit(); err != nil {
		smtpErr := &smtp.SMTPError{}
		// Some servers answer QUIT with 250 instead of 221.
		if errors.As(err, &smtpErr) && smtpErr.Code == 250 {
			return nil
		}
		return err
	}
	return nil
}
