package handler

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/task"
)

// --- 認証まわりのモック ---

type mockLoginProvider struct {
	authCodeURLFn func(state string) string
	exchangeFn    func(ctx context.Context, code string) (*model.ProviderProfile, error)
	exchangeCalls int
}

func (m *mockLoginProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return "https://idp.example.com/authorize?state=" + state
}

func (m *mockLoginProvider) Exchange(ctx context.Context, code string) (*model.ProviderProfile, error) {
	m.exchangeCalls++
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return nil, errors.New("exchange not configured")
}

// lookupOf は指定名のプロバイダだけを返すProviderLookupを作る。
func lookupOf(name string, p LoginProvider) ProviderLookup {
	return func(n string) (LoginProvider, bool) {
		if n != name {
			return nil, false
		}
		return p, true
	}
}

type mockResolver struct {
	resolveFn   func(ctx context.Context, profile *model.ProviderProfile) (*model.Account, error)
	providersFn func(ctx context.Context, accountID string) ([]string, error)
	calls       int
}

func (m *mockResolver) Resolve(ctx context.Context, profile *model.ProviderProfile) (*model.Account, error) {
	m.calls++
	return m.resolveFn(ctx, profile)
}

func (m *mockResolver) LinkedProviders(ctx context.Context, accountID string) ([]string, error) {
	if m.providersFn != nil {
		return m.providersFn(ctx, accountID)
	}
	return []string{}, nil
}

type mockIssuer struct {
	issueFn func(account *model.Account) (string, error)
}

func (m *mockIssuer) Issue(account *model.Account) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(account)
	}
	return "token-for-" + account.ID, nil
}

type mockAccountGetter struct {
	getAccountFn func(ctx context.Context, id string) (*model.Account, error)
}

func (m *mockAccountGetter) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return m.getAccountFn(ctx, id)
}

type mockRecorder struct {
	logins   []string
	statuses []int
}

func (m *mockRecorder) RecordLogin(provider, outcome string) {
	m.logins = append(m.logins, provider+":"+outcome)
}
func (m *mockRecorder) RecordAccountCreated(string) {}
func (m *mockRecorder) RecordTokenRejected() {}
func (m *mockRecorder) RecordProviderLatency(string, time.Duration) {}
func (m *mockRecorder) RecordHTTPStatus(code int) { m.statuses = append(m.statuses, code) }

// --- タスクサービスのモック ---

type mockTaskService struct {
	listFn   func(ctx context.Context, ownerID, filter string) ([]*model.Task, error)
	getFn    func(ctx context.Context, ownerID, id string) (*model.Task, error)
	createFn func(ctx context.Context, ownerID string, in task.Input) (*model.Task, error)
	updateFn func(ctx context.Context, ownerID, id string, in task.Input) (*model.Task, error)
	toggleFn func(ctx context.Context, ownerID, id string) (*model.Task, error)
	deleteFn func(ctx context.Context, ownerID, id string) error
}

func (m *mockTaskService) List(ctx context.Context, ownerID, filter string) ([]*model.Task, error) {
	return m.listFn(ctx, ownerID, filter)
}
func (m *mockTaskService) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	return m.getFn(ctx, ownerID, id)
}
func (m *mockTaskService) Create(ctx context.Context, ownerID string, in task.Input) (*model.Task, error) {
	return m.createFn(ctx, ownerID, in)
}
func (m *mockTaskService) Update(ctx context.Context, ownerID, id string, in task.Input) (*model.Task, error) {
	return m.updateFn(ctx, ownerID, id, in)
}
func (m *mockTaskService) Toggle(ctx context.Context, ownerID, id string) (*model.Task, error) {
	return m.toggleFn(ctx, ownerID, id)
}
func (m *mockTaskService) Delete(ctx context.Context, ownerID, id string) error {
	return m.deleteFn(ctx, ownerID, id)
}

// --- compile-time interface checks ---
var _ LoginProvider = (*mockLoginProvider)(nil)
var _ IdentityResolver = (*mockResolver)(nil)
var _ TokenIssuer = (*mockIssuer)(nil)
var _ AccountGetter = (*mockAccountGetter)(nil)
var _ metrics.Recorder = (*mockRecorder)(nil)
var _ TaskServiceInterface = (*mockTaskService)(nil)
