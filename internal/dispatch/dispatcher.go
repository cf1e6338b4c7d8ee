// Package dispatch delivers list-manager commands over email. The
// transport is fire-and-forget: a successful send only means the
// command was handed off, not that the list manager applied it.
package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Transport submits one command to the list manager's command mailbox
// and returns a provider message id. Implementations do not retry;
// retry is the batch loop re-running a later sweep.
type Transport interface {
	Submit(ctx context.Context, from, command string) (providerID string, err error)
}

// Dispatcher sends commands over SMTP. The command goes in the subject
// line and is duplicated in the body: the list manager reads only the
// subject, but duplication guards against truncation.
type Dispatcher struct {
	Host     string
	Port     int
	User     string
	Password string

	// CommandAddress is the list manager's command mailbox.
	CommandAddress string
}

func (d *Dispatcher) Submit(ctx context.Context, from, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	m := gomail.NewMessage()
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@sympabridge>", id))
	m.SetHeader("From", from)
	m.SetHeader("To", d.CommandAddress)
	m.SetHeader("Subject", command)
	m.SetBody("text/plain", command)

	dialer := gomail.NewDialer(d.Host, d.Port, d.User, d.Password)

	if err := dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send error: %w", err)
	}

	return id, nil
}
