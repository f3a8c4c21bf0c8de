package auth

import (
	"context"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// --- モック定義 ---

type mockAccountRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.Account, error)
	createWithIdentityFn func(ctx context.Context, account *model.Account, identity *model.Identity) error
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockAccountRepo) CreateWithIdentity(ctx context.Context, account *model.Account, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, account, identity)
	}
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	listByAccountFn  func(ctx context.Context, accountID string) ([]*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) ListByAccountID(ctx context.Context, accountID string) ([]*model.Identity, error) {
	if m.listByAccountFn != nil {
		return m.listByAccountFn(ctx, accountID)
	}
	return nil, nil
}

type mockRecorder struct {
	created []string
}

func (m *mockRecorder) RecordLogin(string, string) {}
func (m *mockRecorder) RecordAccountCreated(provider string) { m.created = append(m.created, provider) }
func (m *mockRecorder) RecordTokenRejected() {}
func (m *mockRecorder) RecordProviderLatency(string, time.Duration) {}
func (m *mockRecorder) RecordHTTPStatus(int) {}

// --- compile-time interface checks ---
var _ repository.AccountRepository = (*mockAccountRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ metrics.Recorder = (*mockRecorder)(nil)
