package repository

import (
	"context"
	"time"

	"github.com/unclebandit/campusconnect-mailer/internal/db"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

type TemplateRepositoryInterface interface {
	Create(ctx context.Context, t *model.EmailTemplate) error
	ListByCreator(ctx context.Context, userID string) ([]model.EmailTemplate, error)
}

type TemplateRepository struct {
	DB *db.DB
}

func (r *TemplateRepository) Create(ctx context.Context, t *model.EmailTemplate) error {
	t.CreatedAt = time.Now().UTC()
	query := r.DB.Rebind(`
        INSERT INTO email_templates (id, name, subject, content, created_by, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `)
	_, err := r.DB.ExecContext(ctx, query, t.ID, t.Name, t.Subject, t.Content, t.CreatedBy, t.CreatedAt)
	return err
}

func (r *TemplateRepository) ListByCreator(ctx context.Context, userID string) ([]model.EmailTemplate, error) {
	query := r.DB.Rebind(`
        SELECT id, name, subject, content, created_by, created_at
        FROM email_templates
        WHERE created_by = ?
        ORDER BY created_at DESC
    `)
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []model.EmailTemplate{}
	for rows.Next() {
		var t model.EmailTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.Content, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
