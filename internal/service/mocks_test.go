package service_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campusconnect-mailer/internal/errors"
	"github.com/unclebandit/campusconnect-mailer/internal/mailer"
	"github.com/unclebandit/campusconnect-mailer/internal/model"
	"github.com/unclebandit/campusconnect-mailer/internal/repository"
)

// MockRecordRepo is an in-memory CampaignRecordRepositoryInterface with the
// same compare-and-set semantics as the SQL store.
type MockRecordRepo struct {
	mu      sync.Mutex
	records map[string]*model.CampaignRecord
	order   []string

	CreateErr error
}

func NewMockRecordRepo() *MockRecordRepo {
	return &MockRecordRepo{records: map[string]*model.CampaignRecord{}}
}

func (m *MockRecordRepo) Create(_ context.Context, rec *model.CampaignRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, r := range m.records {
		if r.CampaignID == rec.CampaignID && r.RecipientID == rec.RecipientID {
			return errors.New("duplicate campaign recipient")
		}
	}
	cp := *rec
	m.records[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MockRecordRepo) GetByID(_ context.Context, id string) (*model.CampaignRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, appErrors.NewRecordNotFound(id)
	}
	cp := *r
	return &cp, nil
}

func (m *MockRecordRepo) CompareAndSetStatus(_ context.Context, id string, from []model.Status, to model.Status, upd repository.StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	r.Status = to
	if upd.SentAt != nil {
		r.SentAt = upd.SentAt
	}
	if upd.OpenedAt != nil {
		r.OpenedAt = upd.OpenedAt
	}
	if upd.Error != nil {
		r.Error = *upd.Error
	}
	return true, nil
}

func (m *MockRecordRepo) IncrementOpen(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return false, nil
	}
	r.OpenCount++
	if r.OpenedAt == nil {
		t := at
		r.OpenedAt = &t
	}
	if r.Status == model.StatusSent || r.Status == model.StatusDelivered {
		r.Status = model.StatusOpened
	}
	return true, nil
}

func (m *MockRecordRepo) ListByCampaign(_ context.Context, campaignID, senderID string) ([]model.CampaignRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.CampaignRecord{}
	for _, id := range m.order {
		r := m.records[id]
		if r.CampaignID == campaignID && r.SenderID == senderID {
			out = append(out, *r)
		}
	}
	return out, nil
}

// CtxRecordRepo fails every call made with a done context, like a SQL store.
type CtxRecordRepo struct {
	*MockRecordRepo
}

func (c CtxRecordRepo) Create(ctx context.Context, rec *model.CampaignRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MockRecordRepo.Create(ctx, rec)
}

func (c CtxRecordRepo) GetByID(ctx context.Context, id string) (*model.CampaignRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.MockRecordRepo.GetByID(ctx, id)
}

func (c CtxRecordRepo) CompareAndSetStatus(ctx context.Context, id string, from []model.Status, to model.Status, upd repository.StatusUpdate) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.MockRecordRepo.CompareAndSetStatus(ctx, id, from, to, upd)
}

// Put stores rec as-is, bypassing the tracker.
func (m *MockRecordRepo) Put(rec model.CampaignRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = &rec
	m.order = append(m.order, rec.ID)
}

func (m *MockRecordRepo) All() []model.CampaignRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CampaignRecord, 0, len(m.records))
	for _, id := range m.order {
		out = append(out, *m.records[id])
	}
	return out
}

// MockDirectory serves a fixed set of users.
type MockDirectory struct {
	Users map[string]model.Recipient
}

func NewMockDirectory(users ...model.Recipient) *MockDirectory {
	d := &MockDirectory{Users: map[string]model.Recipient{}}
	for _, u := range users {
		d.Users[u.ID] = u
	}
	return d
}

func (d *MockDirectory) Resolve(_ context.Context, ids []string) ([]model.Recipient, error) {
	out := []model.Recipient{}
	for _, id := range ids {
		if u, ok := d.Users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *MockDirectory) GetByID(_ context.Context, id string) (*model.Recipient, error) {
	if u, ok := d.Users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (d *MockDirectory) ListActive(_ context.Context) ([]model.Recipient, error) {
	out := []model.Recipient{}
	for _, u := range d.Users {
		if u.Status == model.UserStatusActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MockDirectory) ListActiveByRole(ctx context.Context, role string) ([]model.Recipient, error) {
	active, _ := d.ListActive(ctx)
	out := []model.Recipient{}
	for _, u := range active {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// MockSender records messages. Addresses listed in FailFor are rejected.
type MockSender struct {
	mu        sync.Mutex
	Sent      []mailer.Message
	FailFor   map[string]bool
	VerifyErr error
	Delay     time.Duration
	// OnSend runs at the start of every Send.
	OnSend func(mailer.Message)
}

func (s *MockSender) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if s.OnSend != nil {
		s.OnSend(msg)
	}
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.FailFor[msg.To] {
		return "", errors.New("550 mailbox unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, msg)
	return "<" + strings.ReplaceAll(msg.To, "@", ".") + "@mock>", nil
}

func (s *MockSender) Verify(context.Context) error { return s.VerifyErr }

func (s *MockSender) From() mailer.Address {
	return mailer.Address{Name: "Campus Connect", Email: "placements@campus.test"}
}

func (s *MockSender) Close() error { return nil }

func (s *MockSender) Messages() []mailer.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mailer.Message(nil), s.Sent...)
}

func student(id, name string) model.Recipient {
	return model.Recipient{
		ID: id, FullName: name, Email: id + "@campus.test",
		Role: model.RoleStudent, Status: model.UserStatusActive, WantsEmail: true,
	}
}
