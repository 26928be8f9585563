// internal/service/analytics.go
package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

type CampaignStats struct {
	Total     int    `json:"total"`
	Delivered int    `json:"delivered"`
	Opened    int    `json:"opened"`
	Failed    int    `json:"failed"`
	Scheduled int    `json:"scheduled"`
	OpenRate  string `json:"openRate"`
}

type OpenedBy struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	OpenedAt *time.Time `json:"openedAt"`
}

type FailedRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Error string `json:"error"`
}

type CampaignAnalytics struct {
	CampaignID       string            `json:"campaignId"`
	Subject          string            `json:"subject"`
	SentAt           *time.Time        `json:"sentAt"`
	Stats            CampaignStats     `json:"stats"`
	OpenedBy         []OpenedBy        `json:"openedBy"`
	FailedRecipients []FailedRecipient `json:"failedRecipients"`
}

// Analytics summarizes the records of one campaign for its sender.
type Analytics struct {
	Tracker   *Tracker
	Directory repository.RecipientRepositoryInterface
}

// Summarize returns ErrNoData when senderID has no records under campaignID.
func (a *Analytics) Summarize(ctx context.Context, campaignID, senderID string) (*CampaignAnalytics, error) {
	records, err := a.Tracker.FindByCampaign(ctx, campaignID, senderID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, appErrors.ErrNoData
	}

	people := a.lookup(ctx, records)
	out := &CampaignAnalytics{
		CampaignID:       campaignID,
		Subject:          records[0].Subject,
		OpenedBy:         []OpenedBy{},
		FailedRecipients: []FailedRecipient{},
	}

	for _, r := range records {
		out.Stats.Total++
		if r.SentAt != nil && (out.SentAt == nil || r.SentAt.Before(*out.SentAt)) {
			out.SentAt = r.SentAt
		}
		p := people[r.RecipientID]
		switch r.Status {
		case model.StatusDelivered:
			out.Stats.Delivered++
		case model.StatusOpened:
			out.Stats.Delivered++
			out.Stats.Opened++
			out.OpenedBy = append(out.OpenedBy, OpenedBy{Name: p.FullName, Email: p.Email, OpenedAt: r.OpenedAt})
		case model.StatusFailed:
			out.Stats.Failed++
			out.FailedRecipients = append(out.FailedRecipients, FailedRecipient{Name: p.FullName, Email: p.Email, Error: r.Error})
		case model.StatusScheduled:
			out.Stats.Scheduled++
		}
	}
	out.Stats.OpenRate = OpenRate(out.Stats.Opened, out.Stats.Delivered)
	return out, nil
}

// OpenRate formats opened/delivered as a percentage with two decimals, or
// "0%" when nothing was delivered.
func OpenRate(opened, delivered int) string {
	if delivered == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(opened)/float64(delivered)*100)
}

// lookup resolves recipient names. Users missing from the directory are
// reported with blank name and email.
func (a *Analytics) lookup(ctx context.Context, records []model.CampaignRecord) map[string]model.Recipient {
	people := make(map[string]model.Recipient, len(records))
	if a.Directory == nil {
		return people
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.RecipientID)
	}
	users, err := a.Directory.Resolve(ctx, ids)
	if err != nil {
		logger.From(ctx).Warn("analytics recipient lookup failed", logger.Err(err))
		return people
	}
	for _, u := range users {
		people[u.ID] = u
	}
	return people
}
