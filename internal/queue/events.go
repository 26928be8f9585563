package queue

import (
	"encoding/json"
	"time"
)

const (
	// TopicCampaignEvents carries CampaignEvent messages for every record change.
	TopicCampaignEvents = "campaign_events"
	// TopicJobApproved carries JobApproved messages from the job board.
	TopicJobApproved = "job_approved"
)

const (
	EventRecordCreated = "record_created"
	EventTransition    = "transition"
	EventOpened        = "opened"
)

// CampaignEvent describes one change to a campaign record.
type CampaignEvent struct {
	Type       string    `json:"type"`
	CampaignID string    `json:"campaign_id"`
	RecordID   string    `json:"record_id"`
	SenderID   string    `json:"sender_id,omitempty"`
	Status     string    `json:"status"`
	OpenCount  int       `json:"open_count,omitempty"`
	At         time.Time `json:"at"`
}

func (e CampaignEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeCampaignEvent(b []byte) (CampaignEvent, error) {
	var e CampaignEvent
	err := json.Unmarshal(b, &e)
	return e, err
}

// JobApproved is published by the job board when an admin approves a posting.
type JobApproved struct {
	JobID         string     `json:"_id"`
	Profiles      string     `json:"profiles"`
	CompanyName   string     `json:"companyName"`
	Location      string     `json:"location"`
	OfferType     []string   `json:"offerType"`
	CTCOrStipend  string     `json:"ctcOrStipend"`
	Skills        []string   `json:"skills"`
	Eligibility   string     `json:"eligibility,omitempty"`
	DateOfJoining *time.Time `json:"dateOfJoining,omitempty"`
}

func DecodeJobApproved(b []byte) (JobApproved, error) {
	var j JobApproved
	err := json.Unmarshal(b, &j)
	return j, err
}
