package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/unclebandit/campusconnect-mailer/internal/db"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

// RecipientRepositoryInterface is the read side of the user store the
// dispatcher, analytics and auth middleware depend on.
type RecipientRepositoryInterface interface {
	// Resolve returns the users matching ids. Unknown ids are skipped.
	Resolve(ctx context.Context, ids []string) ([]model.Recipient, error)
	// GetByID returns nil, nil when the user does not exist.
	GetByID(ctx context.Context, id string) (*model.Recipient, error)
	ListActive(ctx context.Context) ([]model.Recipient, error)
	ListActiveByRole(ctx context.Context, role string) ([]model.Recipient, error)
}

type RecipientRepository struct {
	DB *db.DB
}

const recipientColumns = `id, email, full_name, role, status, email_notifications`

func (r *RecipientRepository) Resolve(ctx context.Context, ids []string) ([]model.Recipient, error) {
	if len(ids) == 0 {
		return []model.Recipient{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := r.DB.Rebind(`SELECT ` + recipientColumns + ` FROM users WHERE id IN (` + db.Placeholders(len(ids)) + `)`)
	return r.query(ctx, query, args...)
}

func (r *RecipientRepository) GetByID(ctx context.Context, id string) (*model.Recipient, error) {
	query := r.DB.Rebind(`SELECT ` + recipientColumns + ` FROM users WHERE id = ?`)
	var u model.Recipient
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Status, &u.WantsEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, err
	}
	return &u, nil
}

// ListActive fetches every active user (used for targeting in the UI)
func (r *RecipientRepository) ListActive(ctx context.Context) ([]model.Recipient, error) {
	query := r.DB.Rebind(`SELECT ` + recipientColumns + ` FROM users WHERE status = ? ORDER BY full_name`)
	return r.query(ctx, query, model.UserStatusActive)
}

func (r *RecipientRepository) ListActiveByRole(ctx context.Context, role string) ([]model.Recipient, error) {
	query := r.DB.Rebind(`SELECT ` + recipientColumns + ` FROM users WHERE status = ? AND role = ? ORDER BY full_name`)
	return r.query(ctx, query, model.UserStatusActive, role)
}

func (r *RecipientRepository) query(ctx context.Context, query string, args ...any) ([]model.Recipient, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.Recipient{}
	for rows.Next() {
		var u model.Recipient
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.Status, &u.WantsEmail); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
