// internal/service/scheduler.go
package service

import (
	"errors"
	"sync"
	"time"

	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/metrics"
)

var ErrSchedulerStopped = errors.New("scheduler stopped")

// ScheduledJob is one deferred send, fully rendered at scheduling time.
type ScheduledJob struct {
	RecordID   string
	CampaignID string
	Message    mailer.Message
}

// Scheduler holds one in-process timer per scheduled record. Due jobs are
// handed to Workers through Jobs(). Timers live only in memory: Stop, or a
// process exit, drops every pending send.
type Scheduler struct {
	Metrics *metrics.Metrics

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	jobs chan ScheduledJob
	quit chan struct{}
}

func NewScheduler(buffer int) *Scheduler {
	if buffer < 0 {
		buffer = 0
	}
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		jobs:   make(chan ScheduledJob, buffer),
		quit:   make(chan struct{}),
	}
}

// Schedule arms a timer that releases job at `at`. A past `at` fires at once.
func (s *Scheduler) Schedule(job ScheduledJob, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if old, ok := s.timers[job.RecordID]; ok {
		old.Stop()
	}
	s.timers[job.RecordID] = time.AfterFunc(time.Until(at), func() { s.fire(job) })
	s.Metrics.SetScheduledPending(len(s.timers))
	return nil
}

func (s *Scheduler) fire(job ScheduledJob) {
	s.mu.Lock()
	if _, ok := s.timers[job.RecordID]; !ok {
		s.mu.Unlock()
		return // cancelled
	}
	delete(s.timers, job.RecordID)
	s.Metrics.SetScheduledPending(len(s.timers))
	s.mu.Unlock()

	select {
	case s.jobs <- job:
	case <-s.quit:
	}
}

// Cancel disarms the timer of recordID. It reports false when no timer is
// pending, i.e. the send was already released or never scheduled here.
func (s *Scheduler) Cancel(recordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[recordID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, recordID)
	s.Metrics.SetScheduledPending(len(s.timers))
	return true
}

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) Jobs() <-chan ScheduledJob { return s.jobs }

// Done is closed by Stop.
func (s *Scheduler) Done() <-chan struct{} { return s.quit }

// Stop disarms all timers and releases workers. Pending sends are lost.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.Metrics.SetScheduledPending(0)
	close(s.quit)
}
