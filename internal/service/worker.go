// internal/service/worker.go
package service

import (
	"context"
	"time"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/metrics"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

// Worker performs scheduled sends released by the Scheduler
type Worker struct {
	Tracker     *Tracker
	Sender      mailer.Sender
	JobChan     <-chan ScheduledJob
	Quit        <-chan struct{}
	SendTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Constructor
func NewWorker(tracker *Tracker, sender mailer.Sender, s *Scheduler, sendTimeout time.Duration) *Worker {
	return &Worker{
		Tracker:     tracker,
		Sender:      sender,
		JobChan:     s.Jobs(),
		Quit:        s.Done(),
		SendTimeout: sendTimeout,
	}
}

// Start begins processing jobs until Quit is closed
func (w *Worker) Start() {
	for {
		select {
		case job := <-w.JobChan:
			w.process(job)
		case <-w.Quit:
			return
		}
	}
}

func (w *Worker) process(job ScheduledJob) {
	ctx := context.Background()
	log := logger.Named("worker").With(logger.RecordID(job.RecordID), logger.CampaignID(job.CampaignID))

	sendCtx, cancel := context.WithTimeout(ctx, w.timeout())
	start := time.Now()
	messageID, err := w.Sender.Send(sendCtx, job.Message)
	cancel()
	w.Metrics.ObserveTransport(time.Since(start))

	if err != nil {
		err = markTimeout(w.Metrics, err)
		log.Warn("⚠️ scheduled email failed", logger.Email(job.Message.To), logger.Err(err))
		w.Metrics.Send(metrics.OutcomeFailed)
		if _, terr := w.Tracker.Transition(ctx, job.RecordID, model.StatusFailed, TransitionFields{Error: err.Error()}); terr != nil {
			log.Error("failed to record send failure", logger.Err(terr))
		}
		return
	}

	w.Metrics.Send(metrics.OutcomeSent)
	now := time.Now().UTC()
	if _, err := w.Tracker.Transition(ctx, job.RecordID, model.StatusSent, TransitionFields{SentAt: &now}); err != nil {
		log.Error("failed to record scheduled send", logger.Err(err))
		return
	}
	log.Info("✅ scheduled email sent", logger.Email(job.Message.To), logger.MessageID(messageID))
}

func (w *Worker) timeout() time.Duration {
	if w.SendTimeout > 0 {
		return w.SendTimeout
	}
	return defaultSendTimeout
}
