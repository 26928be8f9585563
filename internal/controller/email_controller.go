// internal/controller/email_controller.go
package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/middleware"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

const (
	MaxAttachments     = 5
	MaxAttachmentBytes = 10 << 20
	// multipart bodies beyond this are rejected before parsing
	maxSendBody = MaxAttachments*MaxAttachmentBytes + 1<<20
)

type EmailController struct {
	Dispatcher *service.Dispatcher
	Analytics  *service.Analytics
	Templates  *service.TemplateService
	Directory  *service.DirectoryService
}

type sendRequest struct {
	Subject           string          `json:"subject"`
	Content           string          `json:"content"`
	Recipients        json.RawMessage `json:"recipients"`
	TrackOpens        flexBool        `json:"trackOpens"`
	ScheduledDateTime string          `json:"scheduledDateTime"`
}

// SendBulkEmail handles POST /api/email/send
func (c *EmailController) SendBulkEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}

	req, attachments, err := parseSendRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	recipientIDs, err := parseRecipients(req.Recipients)
	if err != nil {
		writeError(w, err)
		return
	}
	opts := service.SendOptions{TrackOpens: bool(req.TrackOpens)}
	if s := strings.TrimSpace(req.ScheduledDateTime); s != "" {
		at, err := parseScheduledTime(s)
		if err != nil {
			writeError(w, err)
			return
		}
		opts.ScheduledAt = &at
	}

	summary, err := c.Dispatcher.SendCampaign(r.Context(), user.ID, recipientIDs, req.Subject, req.Content, attachments, opts)
	if err != nil {
		logger.From(r.Context()).Warn("❌ bulk email rejected", logger.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetEmailAnalytics handles GET /api/email/analytics/{campaignId}
func (c *EmailController) GetEmailAnalytics(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	campaignID := chi.URLParam(r, "campaignId")

	analytics, err := c.Analytics.Summarize(r.Context(), campaignID, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// CancelScheduled handles DELETE /api/email/scheduled/{trackingId}
func (c *EmailController) CancelScheduled(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	trackingID := chi.URLParam(r, "trackingId")

	if err := c.Dispatcher.CancelScheduled(r.Context(), user.ID, trackingID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scheduled email cancelled", "trackingId": trackingID})
}

// GetSystemEmailConfig handles GET /api/email/system-config
func (c *EmailController) GetSystemEmailConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := c.Dispatcher.SystemConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetUserGroups handles GET /api/email/user-groups
func (c *EmailController) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := c.Directory.UserGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// GetEmailTemplates handles GET /api/email/templates
func (c *EmailController) GetEmailTemplates(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	templates, err := c.Templates.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// SaveEmailTemplate handles POST /api/email/templates
func (c *EmailController) SaveEmailTemplate(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return
	}
	var body struct {
		Name    string `json:"name"`
		Subject string `json:"subject"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	tpl, err := c.Templates.Save(r.Context(), user.ID, body.Name, body.Subject, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// parseSendRequest accepts multipart/form-data (with attachments) or JSON.
func parseSendRequest(w http.ResponseWriter, r *http.Request) (*sendRequest, []mailer.Attachment, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, nil, appErrors.InvalidInput("invalid body")
		}
		return &req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSendBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, appErrors.InvalidInput("invalid multipart body: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	req := &sendRequest{
		Subject:           r.FormValue("subject"),
		Content:           r.FormValue("content"),
		ScheduledDateTime: r.FormValue("scheduledDateTime"),
	}
	req.TrackOpens = flexBool(parseBool(r.FormValue("trackOpens")))
	if vals := r.MultipartForm.Value["recipients"]; len(vals) == 1 {
		req.Recipients = json.RawMessage(vals[0])
	} else if len(vals) > 1 {
		b, _ := json.Marshal(vals)
		req.Recipients = b
	}

	files := r.MultipartForm.File["attachments"]
	if len(files) > MaxAttachments {
		return nil, nil, appErrors.InvalidInput("at most %d attachments are allowed", MaxAttachments)
	}
	attachments := make([]mailer.Attachment, 0, len(files))
	for _, fh := range files {
		if fh.Size > MaxAttachmentBytes {
			return nil, nil, appErrors.InvalidInput("attachment %s exceeds 10MB", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		attachments = append(attachments, mailer.Attachment{Filename: fh.Filename, Content: content})
	}
	return req, attachments, nil
}

// parseRecipients accepts a JSON array of ids, or a plain id.
func parseRecipients(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &ids); err == nil {
			return ids, nil
		}
		return []string{s}, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" && !strings.ContainsAny(trimmed, "[]{}\"") {
		return []string{trimmed}, nil
	}
	return nil, appErrors.InvalidInput("recipients must be a list of user ids")
}

var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"}

func parseScheduledTime(s string) (time.Time, error) {
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, appErrors.InvalidInput("scheduledDateTime %q is not a valid date", s)
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(s))
	return b
}

// flexBool decodes true, "true" and friends.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = flexBool(v)
	return nil
}
