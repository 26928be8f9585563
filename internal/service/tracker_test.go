package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/queue"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

func TestTracker_CreateRecordStatus(t *testing.T) {
	ctx := context.Background()
	tr := &service.Tracker{Repo: NewMockRecordRepo()}

	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.NotEmpty(t, rec.ID)

	past := time.Now().Add(-time.Minute)
	rec, err = tr.CreateRecord(ctx, "c1", "staff", "u2", "Hello", &past)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, rec.Status)
	assert.Nil(t, rec.ScheduledFor)

	future := time.Now().Add(time.Hour)
	rec, err = tr.CreateRecord(ctx, "c1", "staff", "u3", "Hello", &future)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, rec.Status)
	require.NotNil(t, rec.ScheduledFor)
	assert.True(t, rec.ScheduledFor.Equal(future))
}

func TestTracker_TransitionFollowsStateMachine(t *testing.T) {
	ctx := context.Background()
	tr := &service.Tracker{Repo: NewMockRecordRepo()}
	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)

	_, err = tr.Transition(ctx, rec.ID, model.StatusDelivered, service.TransitionFields{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	now := time.Now().UTC()
	got, err := tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{SentAt: &now})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)

	got, err = tr.Transition(ctx, rec.ID, model.StatusDelivered, service.TransitionFields{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, got.Status)

	// no regression
	_, err = tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{})
	var terr *appErrors.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "delivered", terr.From)
	assert.Equal(t, "sent", terr.To)

	_, err = tr.Transition(ctx, "missing", model.StatusSent, service.TransitionFields{})
	assert.ErrorIs(t, err, appErrors.ErrRecordNotFound)
}

func TestTracker_FailedRecordsKeepTheirError(t *testing.T) {
	ctx := context.Background()
	tr := &service.Tracker{Repo: NewMockRecordRepo()}
	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)

	got, err := tr.Transition(ctx, rec.ID, model.StatusFailed, service.TransitionFields{Error: "550 mailbox unavailable"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "550 mailbox unavailable", got.Error)

	_, err = tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestTracker_IncrementOpenIsIdempotentOnStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewMockRecordRepo()
	clock := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tr := &service.Tracker{Repo: repo, Now: func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}}

	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)
	_, err = tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{})
	require.NoError(t, err)

	first := clock.Add(time.Second)
	const n = 5
	for i := 0; i < n; i++ {
		assert.True(t, tr.IncrementOpen(ctx, rec.ID))
	}

	got, err := tr.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.OpenCount)
	assert.Equal(t, model.StatusOpened, got.Status)
	require.NotNil(t, got.OpenedAt)
	assert.True(t, got.OpenedAt.Equal(first), "openedAt must be the first hit")
}

func TestTracker_IncrementOpenConcurrent(t *testing.T) {
	ctx := context.Background()
	tr := &service.Tracker{Repo: NewMockRecordRepo()}
	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)
	_, err = tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.IncrementOpen(ctx, rec.ID)
		}()
	}
	wg.Wait()

	got, err := tr.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.OpenCount)
	assert.Equal(t, model.StatusOpened, got.Status)
}

func TestTracker_IncrementOpenUnknownRecord(t *testing.T) {
	tr := &service.Tracker{Repo: NewMockRecordRepo()}
	assert.False(t, tr.IncrementOpen(context.Background(), "nope"))
}

func TestTracker_IncrementOpenDoesNotReviveFailed(t *testing.T) {
	ctx := context.Background()
	tr := &service.Tracker{Repo: NewMockRecordRepo()}
	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)
	_, err = tr.Transition(ctx, rec.ID, model.StatusFailed, service.TransitionFields{Error: "boom"})
	require.NoError(t, err)

	assert.True(t, tr.IncrementOpen(ctx, rec.ID))
	got, err := tr.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 1, got.OpenCount)
}

func TestTracker_PublishesCampaignEvents(t *testing.T) {
	ctx := context.Background()
	q := queue.NewInMemoryQueue()
	var mu sync.Mutex
	var events []queue.CampaignEvent
	require.NoError(t, q.Subscribe(queue.TopicCampaignEvents, func(b []byte) error {
		ev, err := queue.DecodeCampaignEvent(b)
		if err != nil {
			return err
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	}))

	tr := &service.Tracker{Repo: NewMockRecordRepo(), Queue: q}
	rec, err := tr.CreateRecord(ctx, "c1", "staff", "u1", "Hello", nil)
	require.NoError(t, err)
	_, err = tr.Transition(ctx, rec.ID, model.StatusSent, service.TransitionFields{})
	require.NoError(t, err)
	require.True(t, tr.IncrementOpen(ctx, rec.ID))
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	types := map[string]string{}
	for _, ev := range events {
		assert.Equal(t, "c1", ev.CampaignID)
		assert.Equal(t, rec.ID, ev.RecordID)
		types[ev.Type] = ev.Status
	}
	assert.Equal(t, "pending", types[queue.EventRecordCreated])
	assert.Equal(t, "sent", types[queue.EventTransition])
	assert.Equal(t, "opened", types[queue.EventOpened])
}
