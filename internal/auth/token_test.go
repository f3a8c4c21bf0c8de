package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/todoman/internal/model"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewTokenIssuer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		secret []byte
		ttl    time.Duration
	}{
		{"empty_secret", nil, time.Hour},
		{"short_secret", []byte("too-short"), time.Hour},
		{"zero_ttl", testSecret, 0},
		{"negative_ttl", testSecret, -time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTokenIssuer(tt.secret, tt.ttl, nil); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewTokenIssuer(testSecret, DefaultTokenTTL, nil); err != nil {
		t.Errorf("valid issuer returned error: %v", err)
	}
}

func TestTokenIssuer_IssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testSecret, DefaultTokenTTL, fixedClock(now))
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	account := &model.Account{ID: "acc-a", Email: "a@example.com", DisplayName: "Alice"}
	token, err := issuer.Issue(account)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := VerifyToken(token, testSecret, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if claims.AccountID != "acc-a" || claims.Email != "a@example.com" || claims.Name != "Alice" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if !claims.IssuedAt.Equal(now) {
		t.Errorf("IssuedAt = %v, want %v", claims.IssuedAt, now)
	}
	if want := now.Add(7 * 24 * time.Hour); !claims.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, want)
	}

	if _, err := issuer.Issue(nil); err == nil {
		t.Error("Issue(nil) should fail")
	}
}

// ペイロードはクライアントが表示用に読める形式であること。
func TestSignToken_PayloadFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignToken(TokenClaims{
		AccountID: "acc-1", Email: "e@example.com", Name: "N",
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d parts", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, key := range []string{"id", "email", "name", "iat", "exp"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("payload missing %q: %v", key, fields)
		}
	}
	if fields["id"] != "acc-1" {
		t.Errorf("id = %v, want acc-1", fields["id"])
	}
}

func TestVerifyToken_Expiry(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	token, err := SignToken(TokenClaims{AccountID: "acc", IssuedAt: issuedAt, ExpiresAt: issuedAt.Add(time.Hour)}, testSecret)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}

	if _, err := VerifyToken(token, testSecret, issuedAt.Add(59*time.Minute)); err != nil {
		t.Errorf("token should be valid before exp: %v", err)
	}
	for _, at := range []time.Time{issuedAt.Add(time.Hour), issuedAt.Add(8 * 24 * time.Hour)} {
		if _, err := VerifyToken(token, testSecret, at); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("VerifyToken at %v: expected ErrTokenExpired, got %v", at, err)
		}
	}
}

func TestVerifyToken_Rejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	valid, err := SignToken(TokenClaims{AccountID: "acc", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}, testSecret)
	if err != nil {
		t.Fatalf("SignToken failed: %v", err)
	}

	tampered := valid[:len(valid)-2] + flip(valid[len(valid)-2:])
	otherKey, _ := SignToken(TokenClaims{AccountID: "acc", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}, []byte("another-secret-another-secret-xx"))
	noAccount, _ := SignToken(TokenClaims{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}, testSecret)
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "acc", "exp": now.Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"id": "acc", "exp": now.Add(time.Hour).Unix()}).
		SignedString(testSecret)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "acc"}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-real-token"},
		{"tampered_signature", tampered},
		{"wrong_key", otherKey},
		{"missing_account_id", noAccount},
		{"alg_none", noneAlg},
		{"alg_hs512", hs512},
		{"missing_exp", noExp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := VerifyToken(tt.token, testSecret, now)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
			if claims != nil {
				t.Errorf("expected nil claims, got %+v", claims)
			}
		})
	}
}

// flip は署名末尾を別の文字に置き換える。
func flip(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
	}
	return string(b)
}
