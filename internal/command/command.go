// Package command builds the command strings the list manager parses
// out of inbound email subjects. Token order and spacing are part of
// the protocol; the strings must match exactly.
package command

import (
	"errors"
	"fmt"
)

var (
	ErrMissingListName = errors.New("command requires a list name")
	ErrMissingTicket   = errors.New("command requires a ticket token")
	ErrMissingEmail    = errors.New("command requires a member email")
)

// Distribute approves a held submission identified by its ticket token.
func Distribute(listName, ticketToken string) (string, error) {
	if listName == "" {
		return "", ErrMissingListName
	}
	if ticketToken == "" {
		return "", ErrMissingTicket
	}
	return fmt.Sprintf("DISTRIBUTE %s %s", listName, ticketToken), nil
}

// Reject refuses a held submission identified by its ticket token.
func Reject(listName, ticketToken string) (string, error) {
	if listName == "" {
		return "", ErrMissingListName
	}
	if ticketToken == "" {
		return "", ErrMissingTicket
	}
	return fmt.Sprintf("REJECT %s %s", listName, ticketToken), nil
}

// Add registers a member directly. authCredential is optional; when set
// the command is prefixed with an AUTH clause.
func Add(listName, email, authCredential string) (string, error) {
	return direct("ADD", listName, email, authCredential)
}

// Del removes a member directly. authCredential is optional.
func Del(listName, email, authCredential string) (string, error) {
	return direct("DEL", listName, email, authCredential)
}

func direct(verb, listName, email, authCredential string) (string, error) {
	if listName == "" {
		return "", ErrMissingListName
	}
	if email == "" {
		return "", ErrMissingEmail
	}
	cmd := fmt.Sprintf("%s %s %s", verb, listName, email)
	if authCredential != "" {
		cmd = fmt.Sprintf("AUTH %s %s", authCredential, cmd)
	}
	return cmd, nil
}

// Subscribe is the self-service join command. It must be sent from the
// member's own address; the list manager infers the member from the
// envelope sender.
func Subscribe(listName string) (string, error) {
	if listName == "" {
		return "", ErrMissingListName
	}
	return "SUBSCRIBE " + listName, nil
}

// Signoff is the self-service leave command, sent from the member's own
// address like Subscribe.
func Signoff(listName string) (string, error) {
	if listName == "" {
		return "", ErrMissingListName
	}
	return "SIGNOFF " + listName, nil
}
