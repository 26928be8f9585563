package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/service"
)

type MockTemplateRepo struct {
	saved []model.EmailTemplate
}

func (m *MockTemplateRepo) Create(_ context.Context, t *model.EmailTemplate) error {
	m.saved = append(m.saved, *t)
	return nil
}

func (m *MockTemplateRepo) ListByCreator(_ context.Context, userID string) ([]model.EmailTemplate, error) {
	out := []model.EmailTemplate{}
	for _, t := range m.saved {
		if t.CreatedBy == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestTemplateService_SaveAndList(t *testing.T) {
	repo := &MockTemplateRepo{}
	svc := &service.TemplateService{Repo: repo}
	ctx := context.Background()

	tpl, err := svc.Save(ctx, "staff1", " Drive invite ", "Placement drive", "<p>Hi {name}</p>")
	require.NoError(t, err)
	assert.NotEmpty(t, tpl.ID)
	assert.Equal(t, "Drive invite", tpl.Name)

	_, err = svc.Save(ctx, "staff2", "Other", "S", "C")
	require.NoError(t, err)

	list, err := svc.List(ctx, "staff1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "staff1", list[0].CreatedBy)
}

func TestTemplateService_Validation(t *testing.T) {
	svc := &service.TemplateService{Repo: &MockTemplateRepo{}}
	_, err := svc.Save(context.Background(), "staff1", "", "S", "C")
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
	_, err = svc.Save(context.Background(), "staff1", "N", "", "C")
	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
}

func TestDirectoryService_UserGroups(t *testing.T) {
	inactive := student("u3", "Gone")
	inactive.Status = "inactive"
	svc := &service.DirectoryService{Directory: NewMockDirectory(student("u1", "A"), student("u2", "B"), inactive)}

	groups, err := svc.UserGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, groups.Count)
	assert.Len(t, groups.Users, 2)
}
