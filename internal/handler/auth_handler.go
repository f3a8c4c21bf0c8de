// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/handshake"
	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// LoginProvider は1つのIdPとのOAuthフロー。auth.Provider が実装する。
type LoginProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.ProviderProfile, error)
}

// ProviderLookup はプロバイダ名から設定済みのLoginProviderを引く。
type ProviderLookup func(name string) (LoginProvider, bool)

// RegistryLookup はauth.RegistryをProviderLookupとして使えるようにする。
func RegistryLookup(reg *auth.Registry) ProviderLookup {
	return func(name string) (LoginProvider, bool) {
		p, ok := reg.Get(name)
		if !ok {
			return nil, false
		}
		return p, true
	}
}

// IdentityResolver はIdPのプロフィールをアカウントに解決する。
type IdentityResolver interface {
	Resolve(ctx context.Context, profile *model.ProviderProfile) (*model.Account, error)
	LinkedProviders(ctx context.Context, accountID string) ([]string, error)
}

// TokenIssuer はアカウントのセッショントークンを発行する。
type TokenIssuer interface {
	Issue(account *model.Account) (string, error)
}

// AccountGetter はIDでアカウントを取得する。
type AccountGetter interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// FrontendOrigin はハンドシェイクページのpostMessage送信先オリジン。
	FrontendOrigin string
	// FailureRedirect はログイン失敗時のリダイレクト先。
	FailureRedirect string
	CookieSecure    bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	providers ProviderLookup
	resolver  IdentityResolver
	issuer    TokenIssuer
	accounts  AccountGetter
	recorder  metrics.Recorder
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(
	providers ProviderLookup,
	resolver IdentityResolver,
	issuer TokenIssuer,
	accounts AccountGetter,
	recorder metrics.Recorder,
	config AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		providers: providers,
		resolver:  resolver,
		issuer:    issuer,
		accounts:  accounts,
		recorder:  recorder,
		config:    config,
	}
}

// Login はOAuthフローを開始する。
// GET /auth/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers(name)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotFoundError(name))
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）。サーバー側には保持しない。
	http.SetCookie(w, h.stateCookie(name, state, oauthStateMaxAge))

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// 成功時はセッショントークンをハンドシェイクページで開いた側のウィンドウへ渡す。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers(name)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProviderNotFoundError(name))
		return
	}

	query := r.URL.Query()

	// stateクッキーは結果に関わらず削除する
	stateCookie, cookieErr := r.Cookie(oauthStateCookie)
	http.SetCookie(w, h.stateCookie(name, "", -1))

	// 1. IdPが返したエラー（ユーザーによる拒否など）
	if idpErr := query.Get("error"); idpErr != "" {
		slog.Info("oauth provider returned error",
			slog.String("provider", name),
			slog.String("error", idpErr),
		)
		h.fail(w, r, name)
		return
	}

	// 2. stateの検証
	state := query.Get("state")
	if cookieErr != nil || state == "" ||
		subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		slog.Warn("oauth state mismatch", slog.String("provider", name))
		h.fail(w, r, name)
		return
	}

	// 3. 認可コードの取得
	code := query.Get("code")
	if code == "" {
		slog.Warn("oauth callback without code", slog.String("provider", name))
		h.fail(w, r, name)
		return
	}

	// 4. コード交換とプロフィール取得
	start := time.Now()
	profile, err := provider.Exchange(r.Context(), code)
	if h.recorder != nil {
		h.recorder.RecordProviderLatency(name, time.Since(start))
	}
	if err != nil {
		slog.Warn("oauth exchange failed",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.fail(w, r, name)
		return
	}

	// 5. アカウント解決とトークン発行
	account, err := h.resolver.Resolve(r.Context(), profile)
	if err != nil {
		slog.Error("failed to resolve identity",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		h.recordLogin(name, metrics.OutcomeFailure)
		middleware.WriteInternalServerError(w)
		return
	}

	token, err := h.issuer.Issue(account)
	if err != nil {
		slog.Error("failed to issue token",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		h.recordLogin(name, metrics.OutcomeFailure)
		middleware.WriteInternalServerError(w)
		return
	}

	h.recordLogin(name, metrics.OutcomeSuccess)
	slog.Info("login succeeded",
		slog.String("provider", name),
		slog.String("account_id", account.ID),
	)

	// 6. 開いた側のウィンドウへトークンを渡すページを返す
	if err := handshake.WriteTokenPage(w, token, h.config.FrontendOrigin); err != nil {
		slog.Error("failed to write handshake page", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}

// Me は現在のログインアカウント情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if account == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError())
		return
	}

	providers, err := h.resolver.LinkedProviders(r.Context(), account.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		Email:       account.Email,
		AvatarURL:   account.AvatarURL,
		Providers:   providers,
		CreatedAt:   account.CreatedAt,
	})
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatar_url"`
	Providers   []string  `json:"providers"`
	CreatedAt   time.Time `json:"created_at"`
}

// fail はトークンを発行せずに固定の失敗ページへリダイレクトする。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, provider string) {
	h.recordLogin(provider, metrics.OutcomeFailure)
	http.Redirect(w, r, h.config.FailureRedirect, http.StatusFound)
}

func (h *AuthHandler) recordLogin(provider, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(provider, outcome)
	}
}

// stateCookie はプロバイダごとのパスに限定したstateクッキーを返す。
// maxAgeが負の場合は削除用。
func (h *AuthHandler) stateCookie(provider, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth/" + provider,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
