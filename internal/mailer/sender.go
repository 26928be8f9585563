// Package mailer defines the outbound mail capability used by the dispatcher.
package mailer

import (
	"context"
	"fmt"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name  string `json:"displayName"`
	Email string `json:"emailAddress"`
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%q <%s>", a.Name, a.Email)
}

type Attachment struct {
	Filename string
	Content  []byte
}

type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Sender delivers one message at a time. Implementations must be safe for
// concurrent use and must honour ctx cancellation.
type Sender interface {
	// Send returns the Message-ID assigned to the accepted message.
	Send(ctx context.Context, msg Message) (string, error)
	// Verify checks credentials and connectivity without sending.
	Verify(ctx context.Context) error
	From() Address
	Close() error
}
