// Package notification sends portal-triggered campaigns, such as new job
// announcements to students.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/queue"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

// CampaignSender is the part of the dispatcher the notifier needs.
type CampaignSender interface {
	SendCampaign(ctx context.Context, senderID string, recipientIDs []string, subject, content string, attachments []mailer.Attachment, opts service.SendOptions) (*service.CampaignSummary, error)
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	*service.CampaignSummary
}

type JobNotifier struct {
	Directory repository.RecipientRepositoryInterface
	Sender    CampaignSender
	// SystemSenderID owns the campaigns this notifier creates.
	SystemSenderID string
}

// SendJobApprovalNotifications emails every active student about job. It
// never returns an error: failures are reported in the Result.
func (n *JobNotifier) SendJobApprovalNotifications(ctx context.Context, job queue.JobApproved) Result {
	log := logger.From(ctx).With(zap.String("job_id", job.JobID))

	students, err := n.Directory.ListActiveByRole(ctx, model.RoleStudent)
	if err != nil {
		log.Error("❌ failed to load students", logger.Err(err))
		return Result{Error: err.Error()}
	}
	if len(students) == 0 {
		log.Info("No active students found to notify")
		return Result{Message: "No active students found"}
	}

	ids := make([]string, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}

	subject := fmt.Sprintf("New Job Opportunity: %s at %s", job.Profiles, job.CompanyName)
	content, err := renderJobEmail(job)
	if err != nil {
		return Result{Error: err.Error()}
	}

	summary, err := n.Sender.SendCampaign(ctx, n.systemSender(), ids, subject, content, nil, service.SendOptions{TrackOpens: true})
	if err != nil {
		log.Error("❌ job notification campaign failed", logger.Err(err))
		return Result{Error: err.Error()}
	}

	log.Info("Job notification emails sent",
		logger.CampaignID(summary.CampaignID), zap.Int("sent", summary.Sent), zap.Int("failed", summary.Failed))
	return Result{Success: true, CampaignSummary: summary}
}

func (n *JobNotifier) systemSender() string {
	if n.SystemSenderID != "" {
		return n.SystemSenderID
	}
	return "system"
}

var jobEmail = template.Must(template.New("job").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #4a5568;">New Job Opportunity</h2>
  <p>Hello {name},</p>
  <p>A new job opportunity has been posted that might interest you:</p>
  <div style="background-color: #f7fafc; border-left: 4px solid #4299e1; padding: 15px; margin: 20px 0;">
    <h3 style="margin-top: 0; color: #2d3748;">{{.Profiles}} at {{.CompanyName}}</h3>
    <p><strong>Location:</strong> {{.Location}}</p>
    <p><strong>Offer Type:</strong> {{join .OfferType ", "}}</p>
    <p><strong>CTC/Stipend:</strong> {{.CTCOrStipend}}</p>
    <p><strong>Required Skills:</strong> {{join .Skills ", "}}</p>
    {{- if .Eligibility}}
    <p><strong>Eligibility:</strong> {{.Eligibility}}</p>
    {{- end}}
    {{- if .DateOfJoining}}
    <p><strong>Date of Joining:</strong> {{.DateOfJoining.Format "02 Jan 2006"}}</p>
    {{- end}}
  </div>
  <p>To apply and view full details, please log in to the <a href="{frontend_url}">Campus Connect portal</a>.</p>
  <p>Best regards,<br>Campus Connect Team</p>
</div>
`))

func renderJobEmail(job queue.JobApproved) (string, error) {
	var buf bytes.Buffer
	if err := jobEmail.Execute(&buf, job); err != nil {
		return "", fmt.Errorf("render job email: %w", err)
	}
	return buf.String(), nil
}
