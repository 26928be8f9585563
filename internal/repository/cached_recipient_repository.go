package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unclebandit/campusconnect-mailer/internal/cache"
	"github.com/unclebandit/campusconnect-mailer/internal/logger"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
)

// CachedRecipientRepository keeps resolved users in a cache so repeated
// campaign sends, analytics and auth checks do not hit the user table.
// List queries always go to the backing store.
type CachedRecipientRepository struct {
	Next  RecipientRepositoryInterface
	Cache cache.Client
	TTL   time.Duration

	group singleflight.Group
}

func recipientKey(id string) string { return "recipient:" + id }

func (r *CachedRecipientRepository) Resolve(ctx context.Context, ids []string) ([]model.Recipient, error) {
	found := make([]model.Recipient, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if u, ok := r.cached(ctx, id); ok {
			found = append(found, *u)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return found, nil
	}

	fetched, err := r.Next.Resolve(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range fetched {
		r.store(ctx, &fetched[i])
	}
	return append(found, fetched...), nil
}

func (r *CachedRecipientRepository) GetByID(ctx context.Context, id string) (*model.Recipient, error) {
	if u, ok := r.cached(ctx, id); ok {
		return u, nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		u, err := r.Next.GetByID(ctx, id)
		if err != nil || u == nil {
			return u, err
		}
		r.store(ctx, u)
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	u, _ := v.(*model.Recipient)
	if u == nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *CachedRecipientRepository) ListActive(ctx context.Context) ([]model.Recipient, error) {
	return r.Next.ListActive(ctx)
}

func (r *CachedRecipientRepository) ListActiveByRole(ctx context.Context, role string) ([]model.Recipient, error) {
	return r.Next.ListActiveByRole(ctx, role)
}

func (r *CachedRecipientRepository) cached(ctx context.Context, id string) (*model.Recipient, bool) {
	b, err := r.Cache.Get(ctx, recipientKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.From(ctx).Warn("recipient cache read failed", logger.RecipientID(id), logger.Err(err))
		}
		return nil, false
	}
	var u model.Recipient
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, false
	}
	return &u, true
}

func (r *CachedRecipientRepository) store(ctx context.Context, u *model.Recipient) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := r.Cache.Set(ctx, recipientKey(u.ID), b, r.TTL); err != nil {
		logger.From(ctx).Warn("recipient cache write failed", logger.RecipientID(u.ID), logger.Err(err))
	}
}

var _ RecipientRepositoryInterface = (*CachedRecipientRepository)(nil)
