package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

func TestSummarize_OpenRate(t *testing.T) {
	repo := NewMockRecordRepo()
	dir := NewMockDirectory()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	// 7 delivered, 2 opened, 1 failed
	statuses := []model.Status{
		model.StatusDelivered, model.StatusDelivered, model.StatusDelivered, model.StatusDelivered,
		model.StatusDelivered, model.StatusDelivered, model.StatusDelivered,
		model.StatusOpened, model.StatusOpened,
		model.StatusFailed,
	}
	for i, s := range statuses {
		id := fmt.Sprintf("u%d", i)
		dir.Users[id] = student(id, fmt.Sprintf("Student %d", i))
		rec := model.CampaignRecord{
			ID: fmt.Sprintf("r%d", i), CampaignID: "camp", SenderID: "staff1",
			RecipientID: id, Subject: "Placement drive", Status: s,
		}
		if s != model.StatusFailed {
			sent := base.Add(time.Duration(10-i) * time.Second)
			rec.SentAt = &sent
		} else {
			rec.Error = "550 mailbox unavailable"
		}
		if s == model.StatusOpened {
			opened := base.Add(time.Hour)
			rec.OpenedAt = &opened
		}
		repo.Put(rec)
	}
	// another sender's record in the same campaign is invisible
	repo.Put(model.CampaignRecord{ID: "x", CampaignID: "camp", SenderID: "other", RecipientID: "u0", Status: model.StatusOpened})

	a := &service.Analytics{Tracker: &service.Tracker{Repo: repo}, Directory: dir}
	got, err := a.Summarize(context.Background(), "camp", "staff1")
	require.NoError(t, err)

	assert.Equal(t, service.CampaignStats{
		Total: 10, Delivered: 9, Opened: 2, Failed: 1, Scheduled: 0, OpenRate: "22.22%",
	}, got.Stats)
	assert.Equal(t, "Placement drive", got.Subject)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(base.Add(2*time.Second)), "earliest sentAt")

	require.Len(t, got.OpenedBy, 2)
	assert.Equal(t, "Student 7", got.OpenedBy[0].Name)
	assert.Equal(t, "u7@campus.test", got.OpenedBy[0].Email)
	require.Len(t, got.FailedRecipients, 1)
	assert.Equal(t, "Student 9", got.FailedRecipients[0].Name)
	assert.Equal(t, "550 mailbox unavailable", got.FailedRecipients[0].Error)
}

func TestSummarize_NoData(t *testing.T) {
	a := &service.Analytics{Tracker: &service.Tracker{Repo: NewMockRecordRepo()}, Directory: NewMockDirectory()}
	_, err := a.Summarize(context.Background(), "nope", "staff1")
	assert.ErrorIs(t, err, appErrors.ErrNoData)
}

func TestSummarize_MissingUsersLeaveBlanks(t *testing.T) {
	repo := NewMockRecordRepo()
	repo.Put(model.CampaignRecord{ID: "r1", CampaignID: "c", SenderID: "s", RecipientID: "deleted", Status: model.StatusFailed, Error: "boom"})
	repo.Put(model.CampaignRecord{ID: "r2", CampaignID: "c", SenderID: "s", RecipientID: "u2", Status: model.StatusScheduled})

	a := &service.Analytics{Tracker: &service.Tracker{Repo: repo}, Directory: NewMockDirectory()}
	got, err := a.Summarize(context.Background(), "c", "s")
	require.NoError(t, err)
	assert.Equal(t, "0%", got.Stats.OpenRate)
	assert.Equal(t, 1, got.Stats.Scheduled)
	assert.Nil(t, got.SentAt)
	require.Len(t, got.FailedRecipients, 1)
	assert.Empty(t, got.FailedRecipients[0].Name)
	assert.Empty(t, got.FailedRecipients[0].Email)
}

func TestOpenRate(t *testing.T) {
	assert.Equal(t, "0%", service.OpenRate(0, 0))
	assert.Equal(t, "22.22%", service.OpenRate(2, 9))
	assert.Equal(t, "100.00%", service.OpenRate(3, 3))
	assert.Equal(t, "66.67%", service.OpenRate(2, 3))
}
