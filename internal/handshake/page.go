// Package handshake はログイン完了時にポップアップから開始元ウィンドウへトークンを渡す仕組みを提供する。
package handshake

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"regexp"
)

// tokenPage はトークンを開始元へpostMessageしてウィンドウを閉じるだけの文書。
// html/templateがJSコンテキストの値をエスケープする。
var tokenPage = template.Must(template.New("token").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body>
<script nonce="{{.Nonce}}">
(function () {
  var token = {{.Token}};
  var origin = {{.Origin}};
  if (window.opener) {
    window.opener.postMessage({ token: token }, origin);
  }
  window.close();
})();
</script>
</body>
</html>
`))

type pageData struct {
	Token  string
	Origin string
	Nonce  string
}

// WriteTokenPage はハンドシェイク文書を書き込む。
// targetOriginにはフロントエンドのオリジンを指定し、"*" は使わない。
func WriteTokenPage(w http.ResponseWriter, token, targetOrigin string) error {
	if token == "" {
		return errors.New("token is required")
	}
	if targetOrigin == "" || targetOrigin == "*" {
		return fmt.Errorf("invalid target origin: %q", targetOrigin)
	}

	nonce, err := newNonce()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tokenPage.Execute(&buf, pageData{Token: token, Origin: targetOrigin, Nonce: nonce}); err != nil {
		return fmt.Errorf("failed to render token page: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Content-Security-Policy", "default-src 'none'; script-src 'nonce-"+nonce+"'; frame-ancestors 'none'")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(buf.Bytes())
	return err
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var (
	tokenLiteral  = regexp.MustCompile(`var token = ("(?:[^"\\]|\\.)*");`)
	originLiteral = regexp.MustCompile(`var origin = ("(?:[^"\\]|\\.)*");`)
)

// ParseTokenPage はハンドシェイク文書からトークンとtargetOriginを取り出す。
// 返却値のOriginはtargetOriginであり、送信元オリジンではない。
// ブラウザ以外のクライアントが開始元ウィンドウを模擬するために使う。
func ParseTokenPage(page []byte) (Message, error) {
	token, err := jsString(tokenLiteral, page)
	if err != nil {
		return Message{}, fmt.Errorf("token: %w", err)
	}
	origin, err := jsString(originLiteral, page)
	if err != nil {
		return Message{}, fmt.Errorf("origin: %w", err)
	}
	return Message{Origin: origin, Token: token}, nil
}

func jsString(re *regexp.Regexp, page []byte) (string, error) {
	m := re.FindSubmatch(page)
	if m == nil {
		return "", errors.New("literal not found in page")
	}
	var s string
	if err := json.Unmarshal(m[1], &s); err != nil {
		return "", fmt.Errorf("failed to decode literal: %w", err)
	}
	return s, nil
}
