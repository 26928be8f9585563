// internal/model/campaign_record.go
package model

import "time"

// Status is the delivery state of one CampaignRecord.
type Status string

const (
	// StatusPending is the provisional state between record creation and the
	// first transport outcome of an immediate send.
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusOpened    Status = "opened"
	StatusFailed    Status = "failed"
)

// transitions lists, for every target status, the statuses it may be entered from.
var transitions = map[Status][]Status{
	StatusSent:      {StatusPending, StatusScheduled},
	StatusDelivered: {StatusSent},
	StatusOpened:    {StatusSent, StatusDelivered},
	StatusFailed:    {StatusPending, StatusScheduled, StatusSent},
}

// Predecessors returns the statuses from which to may be entered.
func Predecessors(to Status) []Status {
	return transitions[to]
}

// CanTransition reports whether from -> to is an edge of the delivery state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusOpened || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusDelivered, StatusOpened, StatusFailed:
		return true
	}
	return false
}

// CampaignRecord is the per-recipient delivery and tracking row. ID doubles as
// the open-tracking token.
type CampaignRecord struct {
	ID           string     `db:"id" json:"id"`
	CampaignID   string     `db:"campaign_id" json:"campaign_id"`
	SenderID     string     `db:"sender_id" json:"sender_id"`
	RecipientID  string     `db:"recipient_id" json:"recipient_id"`
	Subject      string     `db:"subject" json:"subject"`
	Status       Status     `db:"status" json:"status"`
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt     *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	OpenCount    int        `db:"open_count" json:"open_count"`
	Error        string     `db:"error" json:"error,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
