// internal/service/tracker.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/queue"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

// TransitionFields are written together with a status change.
type TransitionFields struct {
	SentAt *time.Time
	Error  string
}

// Tracker owns the lifecycle of campaign records. Every status change goes
// through a compare-and-set on the stored status, so concurrent writers can
// never move a record backwards.
type Tracker struct {
	Repo repository.CampaignRecordRepositoryInterface
	// Queue receives a CampaignEvent per change. Optional.
	Queue queue.Queue
	Now   func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// CreateRecord persists a new record. It is scheduled when scheduledFor is
// strictly in the future and pending otherwise.
func (t *Tracker) CreateRecord(ctx context.Context, campaignID, senderID, recipientID, subject string, scheduledFor *time.Time) (*model.CampaignRecord, error) {
	rec := &model.CampaignRecord{
		ID:          uuid.NewString(),
		CampaignID:  campaignID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Subject:     subject,
		Status:      model.StatusPending,
	}
	if scheduledFor != nil && scheduledFor.After(t.now()) {
		at := scheduledFor.UTC()
		rec.Status = model.StatusScheduled
		rec.ScheduledFor = &at
	}

	if err := t.Repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	t.publish(ctx, queue.EventRecordCreated, rec)
	return rec, nil
}

// Transition moves a record to `to` if the state machine allows it from the
// record's current status.
func (t *Tracker) Transition(ctx context.Context, recordID string, to model.Status, fields TransitionFields) (*model.CampaignRecord, error) {
	upd := repository.StatusUpdate{SentAt: fields.SentAt}
	if fields.Error != "" {
		e := fields.Error
		upd.Error = &e
	}

	changed, err := t.Repo.CompareAndSetStatus(ctx, recordID, model.Predecessors(to), to, upd)
	if err != nil {
		return nil, err
	}

	rec, err := t.Repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, appErrors.NewInvalidTransition(recordID, string(rec.Status), string(to))
	}

	logger.From(ctx).Debug("record transitioned",
		logger.RecordID(recordID), logger.CampaignID(rec.CampaignID), logger.Status(string(to)))
	t.publish(ctx, queue.EventTransition, rec)
	return rec, nil
}

// IncrementOpen counts one beacon hit. It reports false for unknown records
// and storage faults, which are logged and never returned.
func (t *Tracker) IncrementOpen(ctx context.Context, recordID string) bool {
	found, err := t.Repo.IncrementOpen(ctx, recordID, t.now())
	if err != nil {
		logger.From(ctx).Warn("open tracking failed", logger.RecordID(recordID), logger.Err(err))
		return false
	}
	if !found {
		return false
	}

	if t.Queue != nil {
		if rec, err := t.Repo.GetByID(ctx, recordID); err == nil {
			t.publish(ctx, queue.EventOpened, rec)
		}
	}
	return true
}

func (t *Tracker) FindByCampaign(ctx context.Context, campaignID, senderID string) ([]model.CampaignRecord, error) {
	return t.Repo.ListByCampaign(ctx, campaignID, senderID)
}

func (t *Tracker) FindByID(ctx context.Context, recordID string) (*model.CampaignRecord, error) {
	return t.Repo.GetByID(ctx, recordID)
}

func (t *Tracker) publish(ctx context.Context, kind string, rec *model.CampaignRecord) {
	if t.Queue == nil {
		return
	}
	body, err := queue.CampaignEvent{
		Type:       kind,
		CampaignID: rec.CampaignID,
		RecordID:   rec.ID,
		SenderID:   rec.SenderID,
		Status:     string(rec.Status),
		OpenCount:  rec.OpenCount,
		At:         t.now(),
	}.Encode()
	if err != nil {
		return
	}
	if err := t.Queue.Publish(ctx, queue.TopicCampaignEvents, body); err != nil {
		logger.From(ctx).Debug("campaign event not published", logger.RecordID(rec.ID), logger.Err(err))
	}
}

// isInvalidTransition is true when a concurrent writer already moved the record.
func isInvalidTransition(err error) bool {
	return errors.Is(err, appErrors.ErrInvalidTransition)
}
