// internal/service/personalize.go
package service

import (
	"fmt"
	"html"
	"strings"

	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

// Personalizer renders one recipient's copy of a campaign body.
type Personalizer struct {
	BackendURL  string
	FrontendURL string
}

// Render substitutes {email}, {name} and {frontend_url} with HTML-escaped
// values and, when trackOpens is set, appends the open-tracking pixel for
// recordID.
func (p Personalizer) Render(content string, r model.Recipient, recordID string, trackOpens bool) string {
	body := RenderTemplate(content, map[string]string{
		"email":        html.EscapeString(r.Email),
		"name":         html.EscapeString(r.FullName),
		"frontend_url": html.EscapeString(p.FrontendURL),
	})
	if trackOpens {
		body += p.Pixel(recordID)
	}
	return body
}

// Pixel is the invisible beacon image pointing at the tracking endpoint.
func (p Personalizer) Pixel(recordID string) string {
	return fmt.Sprintf(`<img src="%s/api/email/track/%s" width="1" height="1" alt="" style="display:none" />`,
		strings.TrimRight(p.BackendURL, "/"), recordID)
}
