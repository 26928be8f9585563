package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/middleware"
)

// Router mounts the email API, the beacon, /metrics and /healthz.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(a.Metrics.Middleware)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", a.Metrics.Handler())

	r.Route("/api/email", func(r chi.Router) {
		// public
		r.Get("/track/{trackingId}", a.Tracking.TrackOpen)

		r.Group(func(r chi.Router) {
			r.Use(a.Auth.Protect)
			r.Use(middleware.StaffOrAdmin)

			r.Get("/system-config", a.Controller.GetSystemEmailConfig)
			r.Get("/user-groups", a.Controller.GetUserGroups)
			r.Get("/templates", a.Controller.GetEmailTemplates)
			r.Post("/templates", a.Controller.SaveEmailTemplate)
			r.Post("/send", a.Controller.SendBulkEmail)
			r.Get("/analytics/{campaignId}", a.Controller.GetEmailAnalytics)
			r.Delete("/scheduled/{trackingId}", a.Controller.CancelScheduled)
		})
	})
	return r
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.PingContext(r.Context()); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// requestLogger attaches a request-scoped zap logger and logs each request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := logger.L().With(zap.String("request_id", chimw.GetReqID(r.Context())))
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logger.ToContext(r.Context(), l)))

		l.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
