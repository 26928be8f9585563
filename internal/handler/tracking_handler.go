// internal/handler/tracking_handler.go
package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/metrics"
)

// transparentGIF is a 1x1 transparent GIF (43 bytes).
var transparentGIF, _ = base64.StdEncoding.DecodeString("R0lGODlhAQABAIAAAP///wAAACH5BAEAAAAALAAAAAABAAEAAAICRAEAOw==")

// OpenTracker counts beacon hits.
type OpenTracker interface {
	IncrementOpen(ctx context.Context, recordID string) bool
}

// TrackingHandler serves the open-tracking pixel. It is public and always
// answers with the image, whatever happens to the tracking update.
type TrackingHandler struct {
	Tracker OpenTracker
	Metrics *metrics.Metrics
}

// TrackOpen handles GET /api/email/track/{trackingId}
func (h *TrackingHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	defer writePixel(w)

	trackingID := chi.URLParam(r, "trackingId")
	h.record(r.Context(), trackingID)
}

func (h *TrackingHandler) record(ctx context.Context, trackingID string) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.From(ctx).Error("❌ open tracking panicked", logger.RecordID(trackingID), zap.Any("panic", rec))
			h.Metrics.Beacon(metrics.BeaconError)
		}
	}()

	if trackingID == "" || h.Tracker == nil {
		h.Metrics.Beacon(metrics.BeaconUnknown)
		return
	}
	if h.Tracker.IncrementOpen(ctx, trackingID) {
		h.Metrics.Beacon(metrics.BeaconHit)
		return
	}
	h.Metrics.Beacon(metrics.BeaconUnknown)
	logger.From(ctx).Debug("beacon for unknown record", logger.RecordID(trackingID))
}

func writePixel(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "image/gif")
	h.Set("Content-Length", strconv.Itoa(len(transparentGIF)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}
