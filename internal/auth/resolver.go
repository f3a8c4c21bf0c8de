package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// IdentityResolver はIdPプロフィールをローカルアカウントに対応付ける。
// 同一の (provider, subject) は何度ログインしても同じアカウントになる。
type IdentityResolver struct {
	accounts   repository.AccountRepository
	identities repository.IdentityRepository
	sanitizer  *security.TextSanitizer
	recorder   metrics.Recorder
	now        func() time.Time
}

// NewIdentityResolver はIdentityResolverを生成する。recorderはnilでもよい。
func NewIdentityResolver(
	accounts repository.AccountRepository,
	identities repository.IdentityRepository,
	recorder metrics.Recorder,
) *IdentityResolver {
	return &IdentityResolver{
		accounts:   accounts,
		identities: identities,
		sanitizer:  security.NewTextSanitizer(),
		recorder:   recorder,
		now:        time.Now,
	}
}

// Resolve はバインディングに対応するアカウントを返し、無ければ作成する。
// 既存アカウントのプロフィールは更新しない。
// 同時作成で一意制約に違反した場合は検索を1回だけやり直す。
func (r *IdentityResolver) Resolve(ctx context.Context, profile *model.ProviderProfile) (*model.Account, error) {
	if profile == nil || profile.Provider == "" || profile.SubjectID == "" {
		return nil, fmt.Errorf("profile must have provider and subject id")
	}

	account, err := r.lookup(ctx, profile)
	if err != nil {
		return nil, err
	}
	if account != nil {
		slog.Info("existing account logged in",
			slog.String("account_id", account.ID),
			slog.String("provider", profile.Provider),
		)
		return account, nil
	}

	account, identity := r.newAccount(profile)
	err = r.accounts.CreateWithIdentity(ctx, account, identity)
	if errors.Is(err, repository.ErrIdentityConflict) {
		// 別リクエストが先に作成した
		existing, lookupErr := r.lookup(ctx, profile)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, fmt.Errorf("identity conflict but binding not found: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if r.recorder != nil {
		r.recorder.RecordAccountCreated(profile.Provider)
	}
	slog.Info("new account created",
		slog.String("account_id", account.ID),
		slog.String("provider", profile.Provider),
	)
	return account, nil
}

// LinkedProviders はアカウントに紐付くIdP名を返す。紐付けが無ければ空スライス。
func (r *IdentityResolver) LinkedProviders(ctx context.Context, accountID string) ([]string, error) {
	identities, err := r.identities.ListByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	providers := make([]string, 0, len(identities))
	for _, identity := range identities {
		providers = append(providers, identity.Provider)
	}
	return providers, nil
}

// lookup はバインディングからアカウントを引く。見つからない場合はnilを返す。
func (r *IdentityResolver) lookup(ctx context.Context, profile *model.ProviderProfile) (*model.Account, error) {
	identity, err := r.identities.FindByProviderAndProviderUserID(ctx, profile.Provider, profile.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, nil
	}

	account, err := r.accounts.FindByID(ctx, identity.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %s bound to %s identity is missing", identity.AccountID, profile.Provider)
	}
	return account, nil
}

func (r *IdentityResolver) newAccount(profile *model.ProviderProfile) (*model.Account, *model.Identity) {
	now := r.now().UTC()
	account := &model.Account{
		ID:          uuid.NewString(),
		DisplayName: r.sanitizer.Clean(profile.DisplayName),
		Email:       normalizeEmail(profile.Email),
		AvatarURL:   security.SafeAvatarURL(profile.AvatarURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	identity := &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.SubjectID,
		CreatedAt:      now,
	}
	return account, identity
}

// normalizeEmail は単体のメールアドレスのみを小文字で受け入れる。
// 表示名付きの形式や解析できない値は空文字として扱う。
func normalizeEmail(raw string) string {
	email := strings.TrimSpace(raw)
	if email == "" {
		return ""
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Name != "" || parsed.Address != email {
		return ""
	}
	return strings.ToLower(parsed.Address)
}
