// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/metrics"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

const (
	defaultConcurrency = 10
	defaultSendTimeout = 30 * time.Second

	cancelledScheduledSend = "scheduled send cancelled"
)

// SendOptions are the per-campaign switches. The zero value sends
// immediately without open tracking.
type SendOptions struct {
	TrackOpens bool
	// ScheduledAt defers every send of the campaign when it is in the future.
	ScheduledAt *time.Time
}

type RecipientResult struct {
	Email        string     `json:"email"`
	MessageID    string     `json:"messageId,omitempty"`
	Status       string     `json:"status,omitempty"`
	ScheduledFor *time.Time `json:"scheduledFor,omitempty"`
	TrackingID   string     `json:"trackingId,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type CampaignDetails struct {
	Successful []RecipientResult `json:"successful"`
	Failed     []RecipientResult `json:"failed"`
}

// CampaignSummary is returned by SendCampaign. Sent and Failed count
// immediate outcomes; Scheduled counts deferred recipients, which are also
// listed under Details.Successful. Skipped lists resolved users that were not
// mailed (opted out or no address) and are not part of TotalRecipients.
type CampaignSummary struct {
	CampaignID      string          `json:"campaignId"`
	TotalRecipients int             `json:"totalRecipients"`
	Sent            int             `json:"sent"`
	Failed          int             `json:"failed"`
	Scheduled       int             `json:"scheduled"`
	Skipped         []string        `json:"skipped"`
	Details         CampaignDetails `json:"details"`
}

type SystemEmailConfig struct {
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

type DispatchConfig struct {
	Concurrency      int
	SendTimeout      time.Duration
	ScheduledWorkers int
	SkipPreflight    bool
	BackendURL       string
	FrontendURL      string
}

// Dispatcher fans a campaign out to its recipients through the mail sender.
type Dispatcher struct {
	Tracker   *Tracker
	Directory repository.RecipientRepositoryInterface
	Sender    mailer.Sender
	Scheduler *Scheduler
	Metrics   *metrics.Metrics
	Config    DispatchConfig

	workers sync.WaitGroup
}

func NewDispatcher(cfg DispatchConfig, tracker *Tracker, directory repository.RecipientRepositoryInterface, sender mailer.Sender, m *metrics.Metrics) *Dispatcher {
	s := NewScheduler(cfg.ScheduledWorkers)
	s.Metrics = m
	return &Dispatcher{
		Tracker:   tracker,
		Directory: directory,
		Sender:    sender,
		Scheduler: s,
		Metrics:   m,
		Config:    cfg,
	}
}

// Start launches the scheduled-send workers.
func (d *Dispatcher) Start() {
	n := d.Config.ScheduledWorkers
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w := NewWorker(d.Tracker, d.Sender, d.Scheduler, d.Config.SendTimeout)
		w.Metrics = d.Metrics
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			w.Start()
		}()
	}
}

// Close stops the scheduler and waits for workers. Sends that have not
// fired yet are dropped.
func (d *Dispatcher) Close() {
	if pending := d.Scheduler.Pending(); pending > 0 {
		logger.Named("dispatcher").Warn("dropping scheduled sends on shutdown", zap.Int("pending", pending))
	}
	d.Scheduler.Stop()
	d.workers.Wait()
}

// SendCampaign sends (or schedules) one personalized copy of content to each
// deliverable recipient under a fresh campaign ID. Per-recipient failures are
// reported in the summary; only input, configuration and resolution faults
// are returned as errors, and those create no records.
func (d *Dispatcher) SendCampaign(ctx context.Context, senderID string, recipientIDs []string, subject, content string, attachments []mailer.Attachment, opts SendOptions) (*CampaignSummary, error) {
	if len(recipientIDs) == 0 {
		return nil, appErrors.ErrNoValidRecipients
	}
	if strings.TrimSpace(subject) == "" {
		return nil, appErrors.InvalidInput("subject is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, appErrors.InvalidInput("content is required")
	}
	if err := d.preflight(ctx); err != nil {
		return nil, err
	}

	recipients, skipped, err := d.resolve(ctx, recipientIDs)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, appErrors.ErrNoValidRecipients
	}

	campaignID := newCampaignID()
	log := logger.From(ctx).With(logger.CampaignID(campaignID), logger.SenderID(senderID))
	log.Info("📨 dispatching campaign", zap.Int("recipients", len(recipients)), zap.Bool("scheduled", opts.ScheduledAt != nil))

	summary := &CampaignSummary{
		CampaignID:      campaignID,
		TotalRecipients: len(recipients),
		Skipped:         skipped,
		Details: CampaignDetails{
			Successful: []RecipientResult{},
			Failed:     []RecipientResult{},
		},
	}
	var mu sync.Mutex
	record := func(res RecipientResult, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case !ok:
			summary.Failed++
			summary.Details.Failed = append(summary.Details.Failed, res)
		case res.Status == string(model.StatusScheduled):
			summary.Scheduled++
			summary.Details.Successful = append(summary.Details.Successful, res)
		default:
			summary.Sent++
			summary.Details.Successful = append(summary.Details.Successful, res)
		}
	}

	// Once records start being written the fan-out must finish, even if
	// the caller goes away.
	work := logger.ToContext(context.WithoutCancel(ctx), log)

	var g errgroup.Group
	g.SetLimit(d.concurrency())
	for _, r := range recipients {
		r := r
		g.Go(func() error {
			res, ok := d.deliver(work, campaignID, senderID, r, subject, content, attachments, opts)
			record(res, ok)
			return nil
		})
	}
	_ = g.Wait()

	log.Info("✅ campaign dispatched",
		zap.Int("sent", summary.Sent), zap.Int("failed", summary.Failed), zap.Int("scheduled", summary.Scheduled))
	return summary, nil
}

// deliver handles one recipient and never returns an error: every fault is
// folded into the result.
func (d *Dispatcher) deliver(ctx context.Context, campaignID, senderID string, r model.Recipient, subject, content string, attachments []mailer.Attachment, opts SendOptions) (RecipientResult, bool) {
	log := logger.From(ctx).With(logger.RecipientID(r.ID), logger.Email(r.Email))
	res := RecipientResult{Email: r.Email}

	rec, err := d.Tracker.CreateRecord(ctx, campaignID, senderID, r.ID, subject, opts.ScheduledAt)
	if err != nil {
		log.Error("⚠️ failed to create tracking record", logger.Err(err))
		d.Metrics.Send(metrics.OutcomeFailed)
		res.Error = err.Error()
		return res, false
	}
	res.TrackingID = rec.ID

	msg := mailer.Message{
		To:          r.Email,
		Subject:     subject,
		HTML:        d.personalizer().Render(content, r, rec.ID, opts.TrackOpens),
		Attachments: attachments,
	}

	if rec.Status == model.StatusScheduled {
		job := ScheduledJob{RecordID: rec.ID, CampaignID: campaignID, Message: msg}
		if err := d.Scheduler.Schedule(job, *rec.ScheduledFor); err != nil {
			d.fail(ctx, rec.ID, err)
			res.Error = err.Error()
			return res, false
		}
		d.Metrics.Send(metrics.OutcomeScheduled)
		res.Status = string(model.StatusScheduled)
		res.ScheduledFor = rec.ScheduledFor
		return res, true
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout())
	start := time.Now()
	messageID, err := d.Sender.Send(sendCtx, msg)
	cancel()
	d.Metrics.ObserveTransport(time.Since(start))

	if err != nil {
		err = markTimeout(d.Metrics, err)
		terr := appErrors.NewTransport(r.Email, err)
		log.Warn("⚠️ failed to send email", logger.Err(terr))
		d.fail(ctx, rec.ID, err)
		res.Error = err.Error()
		return res, false
	}

	now := time.Now().UTC()
	if _, err := d.Tracker.Transition(ctx, rec.ID, model.StatusSent, TransitionFields{SentAt: &now}); err != nil {
		log.Error("failed to mark record sent", logger.RecordID(rec.ID), logger.Err(err))
	} else if _, err := d.Tracker.Transition(ctx, rec.ID, model.StatusDelivered, TransitionFields{}); err != nil && !isInvalidTransition(err) {
		// an early beacon hit may already have moved it to opened
		log.Error("failed to mark record delivered", logger.RecordID(rec.ID), logger.Err(err))
	}

	d.Metrics.Send(metrics.OutcomeSent)
	res.MessageID = messageID
	res.Status = string(model.StatusSent)
	return res, true
}

// markTimeout flags a send that hit its deadline. The transport may still
// complete it, so the recorded failure means the outcome is unknown.
func markTimeout(m *metrics.Metrics, err error) error {
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	m.TransportTimeout()
	return fmt.Errorf("%w (outcome unknown, the message may still be delivered)", err)
}

func (d *Dispatcher) fail(ctx context.Context, recordID string, cause error) {
	d.Metrics.Send(metrics.OutcomeFailed)
	if _, err := d.Tracker.Transition(ctx, recordID, model.StatusFailed, TransitionFields{Error: cause.Error()}); err != nil {
		logger.From(ctx).Error("failed to mark record failed", logger.RecordID(recordID), logger.Err(err))
	}
}

// CancelScheduled withdraws a scheduled send that has not fired yet. Only the
// campaign's sender may cancel; other callers see ErrRecordNotFound.
func (d *Dispatcher) CancelScheduled(ctx context.Context, senderID, recordID string) error {
	rec, err := d.Tracker.FindByID(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.SenderID != senderID {
		return appErrors.NewRecordNotFound(recordID)
	}
	if rec.Status != model.StatusScheduled || !d.Scheduler.Cancel(recordID) {
		return appErrors.ErrNotScheduled
	}

	if _, err := d.Tracker.Transition(ctx, recordID, model.StatusFailed, TransitionFields{Error: cancelledScheduledSend}); err != nil {
		return err
	}
	logger.From(ctx).Info("scheduled send cancelled", logger.RecordID(recordID), logger.CampaignID(rec.CampaignID))
	return nil
}

// SystemConfig verifies the mail sender and reports its From identity.
func (d *Dispatcher) SystemConfig(ctx context.Context) (*SystemEmailConfig, error) {
	if d.Sender == nil {
		return nil, appErrors.NewConfiguration(errors.New("no mail sender"))
	}
	if err := d.verify(ctx); err != nil {
		return nil, err
	}
	from := d.Sender.From()
	return &SystemEmailConfig{EmailAddress: from.Email, DisplayName: from.Name}, nil
}

func (d *Dispatcher) preflight(ctx context.Context) error {
	if d.Sender == nil {
		return appErrors.NewConfiguration(errors.New("no mail sender"))
	}
	if d.Config.SkipPreflight {
		return nil
	}
	return d.verify(ctx)
}

func (d *Dispatcher) verify(ctx context.Context) error {
	if err := d.Sender.Verify(ctx); err != nil {
		if errors.Is(err, appErrors.ErrConfiguration) {
			return err
		}
		return appErrors.NewConfiguration(err)
	}
	return nil
}

// resolve de-duplicates ids and keeps recipients that can and want to
// receive mail. The ids of resolved users left out are returned as skipped.
func (d *Dispatcher) resolve(ctx context.Context, ids []string) ([]model.Recipient, []string, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil, nil
	}

	users, err := d.Directory.Resolve(ctx, unique)
	if err != nil {
		return nil, nil, err
	}
	skipped := []string{}
	out := make([]model.Recipient, 0, len(users))
	handled := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, dup := handled[u.ID]; dup {
			continue
		}
		handled[u.ID] = struct{}{}
		if strings.TrimSpace(u.Email) == "" || !u.WantsEmail {
			logger.From(ctx).Debug("skipping recipient", logger.RecipientID(u.ID))
			skipped = append(skipped, u.ID)
			continue
		}
		out = append(out, u)
	}
	return out, skipped, nil
}

func (d *Dispatcher) personalizer() Personalizer {
	return Personalizer{BackendURL: d.Config.BackendURL, FrontendURL: d.Config.FrontendURL}
}

func (d *Dispatcher) concurrency() int {
	if d.Config.Concurrency > 0 {
		return d.Config.Concurrency
	}
	return defaultConcurrency
}

func (d *Dispatcher) sendTimeout() time.Duration {
	if d.Config.SendTimeout > 0 {
		return d.Config.SendTimeout
	}
	return defaultSendTimeout
}

// newCampaignID returns 32 lowercase hex characters.
func newCampaignID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
