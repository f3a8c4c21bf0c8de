package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hitoshi/todoman/internal/auth"
)

// MinJWTSecretLength はJWT_SECRETに要求する最小バイト数。
const MinJWTSecretLength = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Session token
	JWTSecret string        `env:"JWT_SECRET"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`

	// Identity providers
	Google   ProviderEnv `envPrefix:"GOOGLE_"`
	GitHub   ProviderEnv `envPrefix:"GITHUB_"`
	Facebook ProviderEnv `envPrefix:"FACEBOOK_"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// Frontend
	FrontendOrigin      string `env:"FRONTEND_ORIGIN"`
	AuthFailureRedirect string `env:"AUTH_FAILURE_REDIRECT"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitLogin   int `env:"RATE_LIMIT_LOGIN" envDefault:"20"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL"`
	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For/X-Real-IPをクライアントIPとして使う。
	// 信頼できるリバースプロキシ配下でのみ有効にする。
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`
}

// ProviderEnv はIdP1件分の認証情報。
type ProviderEnv struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

func (p ProviderEnv) configured() bool {
	return p.ClientID != "" || p.ClientSecret != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の欠落はまとめて1つのエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.FrontendOrigin == "" {
		missing = append(missing, "FRONTEND_ORIGIN")
	}
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if !cfg.Google.configured() && !cfg.GitHub.configured() && !cfg.Facebook.configured() {
		missing = append(missing, "GOOGLE_CLIENT_ID|GITHUB_CLIENT_ID|FACEBOOK_CLIENT_ID")
	}

	var problems []error
	if len(missing) > 0 {
		problems = append(problems, fmt.Errorf("required environment variables are not set: %v", missing))
	}
	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < MinJWTSecretLength {
		problems = append(problems, fmt.Errorf("JWT_SECRET must be at least %d bytes", MinJWTSecretLength))
	}
	if cfg.TokenTTL <= 0 {
		problems = append(problems, errors.New("TOKEN_TTL must be positive"))
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitLogin <= 0 {
		problems = append(problems, errors.New("RATE_LIMIT_GENERAL and RATE_LIMIT_LOGIN must be positive"))
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	cfg.FrontendOrigin = strings.TrimRight(cfg.FrontendOrigin, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.AuthFailureRedirect == "" {
		cfg.AuthFailureRedirect = cfg.FrontendOrigin + "/"
	}
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = cfg.FrontendOrigin
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// ProviderConfigs はクライアントIDまたはシークレットが設定されたIdPの設定を返す。
// 不完全な組み合わせの検出はauth.NewRegistryに任せる。
func (c *Config) ProviderConfigs() map[string]auth.ProviderConfig {
	out := make(map[string]auth.ProviderConfig)
	for name, p := range map[string]ProviderEnv{
		"google":   c.Google,
		"github":   c.GitHub,
		"facebook": c.Facebook,
	} {
		if !p.configured() {
			continue
		}
		callback := p.CallbackURL
		if callback == "" {
			callback = c.BaseURL + "/auth/" + name + "/callback"
		}
		out[name] = auth.ProviderConfig{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			CallbackURL:  callback,
		}
	}
	return out
}
