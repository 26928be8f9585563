package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

func TestTemplateRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := &repository.TemplateRepository{DB: openTestDB(t)}

	require.NoError(t, repo.Create(ctx, &model.EmailTemplate{ID: "t1", Name: "Drive", Subject: "Drive", Content: "<p>Hi {name}</p>", CreatedBy: "staff-1"}))
	require.NoError(t, repo.Create(ctx, &model.EmailTemplate{ID: "t2", Name: "Other", Subject: "S", Content: "C", CreatedBy: "staff-2"}))

	mine, err := repo.ListByCreator(ctx, "staff-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Drive", mine[0].Name)
	assert.False(t, mine[0].CreatedAt.IsZero())
}
