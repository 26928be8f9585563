// internal/service/template_service.go
package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

// RenderTemplate replaces every {key} in template with data[key].
func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

type TemplateService struct {
	Repo repository.TemplateRepositoryInterface
}

func (s *TemplateService) Save(ctx context.Context, userID, name, subject, content string) (*model.EmailTemplate, error) {
	if strings.TrimSpace(name) == "" {
		return nil, appErrors.InvalidInput("template name is required")
	}
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(content) == "" {
		return nil, appErrors.InvalidInput("template subject and content are required")
	}

	t := &model.EmailTemplate{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		Subject:   subject,
		Content:   content,
		CreatedBy: userID,
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) List(ctx context.Context, userID string) ([]model.EmailTemplate, error) {
	return s.Repo.ListByCreator(ctx, userID)
}
