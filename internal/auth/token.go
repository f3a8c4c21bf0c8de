package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/todoman/internal/model"
)

// MinSecretLength は署名鍵の最小バイト長。
const MinSecretLength = 32

// DefaultTokenTTL はセッショントークンの既定有効期間。
const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidToken は形式不正・署名不一致・必須クレーム欠落のトークンを表す。
	ErrInvalidToken = errors.New("invalid session token")
	// ErrTokenExpired は有効期限切れのトークンを表す。
	ErrTokenExpired = errors.New("session token expired")
)

// TokenClaims はセッショントークンに含まれる情報。
// クライアントは表示目的でペイロードを読んでよいが、検証はサーバーのみが行う。
type TokenClaims struct {
	AccountID string
	Email     string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionClaims はJWTのエンコード用クレーム。
type sessionClaims struct {
	AccountID string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	jwt.RegisteredClaims
}

// SignToken はクレームにHS256で署名したトークンを返す。
func SignToken(claims TokenClaims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("signing secret is empty")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
		Name:      claims.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken は署名と有効期限を検証し、クレームを返す。
// 時刻はnowで与え、I/Oは行わない。
func VerifyToken(raw string, secret []byte, now time.Time) (*TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(secret) == 0 {
		return nil, ErrInvalidToken
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if strings.TrimSpace(parsed.AccountID) == "" {
		return nil, fmt.Errorf("%w: missing account id", ErrInvalidToken)
	}
	if parsed.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now.UTC()) {
		return nil, ErrTokenExpired
	}

	claims := &TokenClaims{
		AccountID: parsed.AccountID,
		Email:     parsed.Email,
		Name:      parsed.Name,
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// TokenIssuer はアカウントに対してセッショントークンを発行する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
// 鍵長不足や不正なTTLは起動時エラーとし、試し署名で署名設定を確認する。
func NewTokenIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive: %s", ttl)
	}
	if now == nil {
		now = time.Now
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	probeAt := now()
	if _, err := SignToken(TokenClaims{AccountID: "probe", IssuedAt: probeAt, ExpiresAt: probeAt.Add(ttl)}, key); err != nil {
		return nil, fmt.Errorf("signing probe failed: %w", err)
	}

	return &TokenIssuer{secret: key, ttl: ttl, now: now}, nil
}

// Issue はアカウントのID・メール・表示名を含むトークンを発行する。
func (i *TokenIssuer) Issue(account *model.Account) (string, error) {
	if account == nil || account.ID == "" {
		return "", fmt.Errorf("account is required")
	}
	issuedAt := i.now().UTC()
	return SignToken(TokenClaims{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.DisplayName,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(i.ttl),
	}, i.secret)
}

// Verify は発行者と同じ鍵と時計でトークンを検証する。
func (i *TokenIssuer) Verify(raw string) (*TokenClaims, error) {
	return VerifyToken(raw, i.secret, i.now())
}
