package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unclebandit/campusconnect-mailer/internal/db"
	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

// StatusUpdate carries the optional columns written alongside a status change.
// Nil fields leave the stored value untouched.
type StatusUpdate struct {
	SentAt   *time.Time
	OpenedAt *time.Time
	Error    *string
}

type CampaignRecordRepositoryInterface interface {
	Create(ctx context.Context, rec *model.CampaignRecord) error
	GetByID(ctx context.Context, id string) (*model.CampaignRecord, error)
	// CompareAndSetStatus moves the record to `to` only if its current status
	// is one of `from`. It reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, id string, from []model.Status, to model.Status, upd StatusUpdate) (bool, error)
	// IncrementOpen bumps open_count, sets opened_at once and moves sent or
	// delivered records to opened. It reports whether the record exists.
	IncrementOpen(ctx context.Context, id string, at time.Time) (bool, error)
	ListByCampaign(ctx context.Context, campaignID, senderID string) ([]model.CampaignRecord, error)
}

type CampaignRecordRepository struct {
	DB *db.DB
}

const recordColumns = `id, campaign_id, sender_id, recipient_id, subject, status,
    scheduled_for, sent_at, opened_at, open_count, error, created_at, updated_at`

func (r *CampaignRecordRepository) Create(ctx context.Context, rec *model.CampaignRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	query := r.DB.Rebind(`
        INSERT INTO email_tracking (` + recordColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.CampaignID, rec.SenderID, rec.RecipientID, rec.Subject, string(rec.Status),
		rec.ScheduledFor, rec.SentAt, rec.OpenedAt, rec.OpenCount, rec.Error,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (r *CampaignRecordRepository) GetByID(ctx context.Context, id string) (*model.CampaignRecord, error) {
	query := r.DB.Rebind(`SELECT ` + recordColumns + ` FROM email_tracking WHERE id=?`)
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewRecordNotFound(id)
		}
		return nil, err
	}
	return rec, nil
}

func (r *CampaignRecordRepository) CompareAndSetStatus(ctx context.Context, id string, from []model.Status, to model.Status, upd StatusUpdate) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	args := []any{string(to), upd.SentAt, upd.OpenedAt, upd.Error, time.Now().UTC(), id}
	for _, s := range from {
		args = append(args, string(s))
	}
	query := r.DB.Rebind(`
        UPDATE email_tracking
        SET status=?,
            sent_at=COALESCE(?, sent_at),
            opened_at=COALESCE(?, opened_at),
            error=COALESCE(?, error),
            updated_at=?
        WHERE id=? AND status IN (` + db.Placeholders(len(from)) + `)
    `)
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRecordRepository) IncrementOpen(ctx context.Context, id string, at time.Time) (bool, error) {
	query := r.DB.Rebind(`
        UPDATE email_tracking
        SET open_count=open_count+1,
            opened_at=COALESCE(opened_at, ?),
            status=CASE WHEN status IN ('sent', 'delivered') THEN 'opened' ELSE status END,
            updated_at=?
        WHERE id=?
    `)
	res, err := r.DB.ExecContext(ctx, query, at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRecordRepository) ListByCampaign(ctx context.Context, campaignID, senderID string) ([]model.CampaignRecord, error) {
	query := r.DB.Rebind(`
        SELECT ` + recordColumns + `
        FROM email_tracking
        WHERE campaign_id=? AND sender_id=?
        ORDER BY created_at, id
    `)
	rows, err := r.DB.QueryContext(ctx, query, campaignID, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.CampaignRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.CampaignRecord, error) {
	var rec model.CampaignRecord
	var status string
	var scheduledFor, sentAt, openedAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.SenderID, &rec.RecipientID, &rec.Subject, &status,
		&scheduledFor, &sentAt, &openedAt, &rec.OpenCount, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.Status(status)
	rec.ScheduledFor = timePtr(scheduledFor)
	rec.SentAt = timePtr(sentAt)
	rec.OpenedAt = timePtr(openedAt)
	return &rec, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ CampaignRecordRepositoryInterface = (*CampaignRecordRepository)(nil)
