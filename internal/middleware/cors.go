package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware はオリジン許可リストに基づくCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定できる（例: 本番とプレビュー環境のフロントエンド）。
// 許可されたOriginのみをAccess-Control-Allow-Originにそのまま返す。
// 認証はAuthorizationヘッダーで行うため、credentials（Cookie）は許可しない。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	allowed := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			_, ok := allowed[origin]
			if ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// プリフライトは許可の有無に関わらずここで終える。
			// 許可されていない場合はヘッダーが無いためブラウザが本リクエストを送らない。
			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" && o != "*" {
			out[o] = struct{}{}
		}
	}
	return out
}
