package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/todoman/internal/model"
)

// contextKey はコンテキストキーの型。
type contextKey string

const accountIDContextKey contextKey = "account_id"

// ErrNoAccountInContext はコンテキストにアカウントIDが存在しない場合のエラー。
var ErrNoAccountInContext = errors.New("account ID not found in context")

// Authenticator はベアラートークンを検証し、対応するアカウントを返す。
// auth.Service が実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*model.Account, error)
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証するミドルウェアを返す。
// ヘッダー欠落・形式不正・署名不正・期限切れ・アカウント消失はすべて同一の401となる。
// 検証成功時はアカウントIDをリクエストコンテキストに設定する。
func NewBearerAuthMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteUnauthorized(w)
				return
			}

			account, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil || account == nil {
				WriteUnauthorized(w)
				return
			}

			annotateAccount(r.Context(), account.ID)
			ctx := ContextWithAccountID(r.Context(), account.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
func AccountIDFromContext(ctx context.Context) (string, error) {
	accountID, ok := ctx.Value(accountIDContextKey).(string)
	if !ok || accountID == "" {
		return "", ErrNoAccountInContext
	}
	return accountID, nil
}

// ContextWithAccountID はアカウントIDを設定したコンテキストを返す。
// ハンドラーのテストで認証済みリクエストを組み立てる際にも使用する。
func ContextWithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDContextKey, accountID)
}

// bearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
