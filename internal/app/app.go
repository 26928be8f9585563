// Package app wires configuration into the running mailer: storage, cache,
// queue, mail sender and services. Every cmd builds one App.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/cache"
	"github.com/unclebandit/campusconnect-mailer/internal/config"
	"github.com/unclebandit/campusconnect-mailer/internal/controller"
	"github.com/unclebandit/campusconnect-mailer/internal/db"
	"github.com/unclebandit/campusconnect-mailer/internal/handler"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/metrics"
	"github.com/unclebandit/campusconnect-mailer/internal/middleware"
	"github.com/unclebandit/campusconnect-mailer/internal/notification"
	"github.com/unclebandit/campusconnect-mailer/internal/queue"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

type App struct {
	Config  *config.Config
	DB      *db.DB
	Cache   cache.Client
	Queue   queue.Queue
	Sender  mailer.Sender
	Metrics *metrics.Metrics

	Directory  repository.RecipientRepositoryInterface
	Tracker    *service.Tracker
	Dispatcher *service.Dispatcher
	Analytics  *service.Analytics
	Notifier   *notification.JobNotifier

	Controller *controller.EmailController
	Tracking   *handler.TrackingHandler
	Auth       *middleware.Auth
}

// Options override parts of the wiring, mostly for tests.
type Options struct {
	Registerer prometheus.Registerer
	// Sender replaces the SMTP sender built from config.
	Sender mailer.Sender
	// Queue replaces the queue chosen from config.
	Queue queue.Queue
}

// New opens storage, applies the schema and builds every service. The mail
// sender is verified once; a failing sender is logged and left in place so
// sends report a configuration fault while tracking and analytics keep
// working.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := logger.Named("app")
	a := &App{Config: cfg}

	m, err := metrics.New(opts.Registerer)
	if err != nil {
		return nil, err
	}
	a.Metrics = m

	a.DB, err = db.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	if err := a.DB.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Cache, err = cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		DefaultTTL: cfg.Cache.TTL,
		Prefix:     cfg.Cache.KeyPrefix,
		RedisAddr:  cfg.Cache.RedisAddr,
		RedisPass:  cfg.Cache.RedisPass,
		RedisDB:    cfg.Cache.RedisDB,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Queue = opts.Queue
	if a.Queue == nil {
		if a.Queue, err = openQueue(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Sender = opts.Sender
	if a.Sender == nil {
		a.Sender = buildSender(ctx, cfg, log)
	}

	a.Directory = &repository.CachedRecipientRepository{
		Next:  &repository.RecipientRepository{DB: a.DB},
		Cache: a.Cache,
		TTL:   cfg.Cache.TTL,
	}
	a.Tracker = &service.Tracker{
		Repo:  &repository.CampaignRecordRepository{DB: a.DB},
		Queue: a.Queue,
	}
	a.Dispatcher = service.NewDispatcher(service.DispatchConfig{
		Concurrency:      cfg.Dispatch.Concurrency,
		SendTimeout:      cfg.Dispatch.SendTimeout,
		ScheduledWorkers: cfg.Dispatch.ScheduledWorkers,
		SkipPreflight:    cfg.Dispatch.SkipPreflight,
		BackendURL:       cfg.Email.BackendURL,
		FrontendURL:      cfg.Email.FrontendURL,
	}, a.Tracker, a.Directory, a.Sender, a.Metrics)
	a.Dispatcher.Start()

	a.Analytics = &service.Analytics{Tracker: a.Tracker, Directory: a.Directory}
	a.Notifier = &notification.JobNotifier{
		Directory:      a.Directory,
		Sender:         a.Dispatcher,
		SystemSenderID: cfg.Email.SystemSenderID,
	}
	a.Controller = &controller.EmailController{
		Dispatcher: a.Dispatcher,
		Analytics:  a.Analytics,
		Templates:  &service.TemplateService{Repo: &repository.TemplateRepository{DB: a.DB}},
		Directory:  &service.DirectoryService{Directory: a.Directory},
	}
	a.Tracking = &handler.TrackingHandler{Tracker: a.Tracker, Metrics: a.Metrics}
	a.Auth = &middleware.Auth{Secret: []byte(cfg.Auth.JWTSecret), Directory: a.Directory, Leeway: 30 * time.Second}
	return a, nil
}

func openQueue(cfg *config.Config) (queue.Queue, error) {
	if cfg.AMQP.URL == "" {
		return queue.NewInMemoryQueue(), nil
	}
	return queue.DialAMQP(cfg.AMQP.URL)
}

// buildSender returns nil when the SMTP settings are unusable.
func buildSender(ctx context.Context, cfg *config.Config, log *zap.Logger) mailer.Sender {
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		DisplayName:        cfg.SMTP.DisplayName,
		TLSMode:            cfg.SMTP.TLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		Timeout:            cfg.SMTP.Timeout,
	})
	if err != nil {
		log.Warn("⚠️ mail sender disabled", logger.Err(err))
		return nil
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.SMTP.Timeout)
	defer cancel()
	if err := s.Verify(vctx); err != nil {
		log.Warn("⚠️ SMTP connection verification failed", logger.Err(err))
	} else {
		log.Info("SMTP connection verified successfully", logger.Email(s.From().Email))
	}
	return s
}

// SubscribeEvents feeds campaign events into the transitions metric.
func (a *App) SubscribeEvents() error {
	return a.Queue.Subscribe(queue.TopicCampaignEvents, func(body []byte) error {
		ev, err := queue.DecodeCampaignEvent(body)
		if err != nil {
			logger.Named("events").Warn("dropping malformed campaign event", logger.Err(err))
			return nil // no retry
		}
		a.Metrics.Transition(ev.Status)
		return nil
	})
}

// SubscribeJobApprovals runs the job notifier for every job_approved message.
func (a *App) SubscribeJobApprovals() error {
	return a.Queue.Subscribe(queue.TopicJobApproved, func(body []byte) error {
		job, err := queue.DecodeJobApproved(body)
		if err != nil {
			logger.Named("worker").Warn("Invalid job", logger.Err(err))
			return nil // no retry
		}
		res := a.Notifier.SendJobApprovalNotifications(context.Background(), job)
		if !res.Success && res.Error != "" {
			return errors.New(res.Error)
		}
		return nil
	})
}

// Close stops scheduled sends and releases every resource. Safe on a
// partially built App.
func (a *App) Close() error {
	var errs []error
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.Sender != nil {
		errs = append(errs, a.Sender.Close())
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
