package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidRecipients is returned before fan-out when no deliverable
	// recipient is left after resolution.
	ErrNoValidRecipients = errors.New("no valid recipients found")
	ErrRecordNotFound    = errors.New("campaign record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoData            = errors.New("no data found for this campaign")
	ErrNotScheduled      = errors.New("record is not awaiting a scheduled send")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConfiguration     = errors.New("mail sender is not configured")
)

// RecordNotFoundError carries the unknown record ID and matches ErrRecordNotFound.
type RecordNotFoundError struct {
	RecordID string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("campaign record %s not found", e.RecordID)
}

func (e *RecordNotFoundError) Is(target error) bool { return target == ErrRecordNotFound }

func NewRecordNotFound(id string) error {
	return &RecordNotFoundError{RecordID: id}
}

// InvalidTransitionError matches ErrInvalidTransition.
type InvalidTransitionError struct {
	RecordID string
	From     string
	To       string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("record %s cannot move from %s to %s", e.RecordID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func NewInvalidTransition(id, from, to string) error {
	return &InvalidTransitionError{RecordID: id, From: from, To: to}
}

// ConfigurationError is a fatal fault of the mail sender (missing credentials,
// unreachable SMTP server). It matches ErrConfiguration.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return ErrConfiguration.Error()
	}
	return "mail sender unavailable: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func NewConfiguration(err error) error {
	return &ConfigurationError{Err: err}
}

// TransportError is a per-recipient send failure. It is recorded on the
// recipient's record and never returned to the campaign initiator.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransport(recipient string, err error) error {
	return &TransportError{Recipient: recipient, Err: err}
}

// InvalidInput wraps ErrInvalidInput with a field-level reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
