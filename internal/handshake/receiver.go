package handshake

import (
	"context"
	"sync"
)

// Message は開始元ウィンドウに届く1通のメッセージ。
// Originは送信元文書のオリジン（ブラウザのMessageEvent.originに相当）。
type Message struct {
	Origin string
	Token  string
}

// Receiver は開始元ウィンドウ側の受信口。
// 期待するオリジンからの空でないトークンを、生存期間中に1通だけ受け付ける。
type Receiver struct {
	expectedOrigin string

	mu       sync.Mutex
	token    string
	accepted bool
	done     chan struct{}
}

// NewReceiver はReceiverを生成する。
func NewReceiver(expectedOrigin string) *Receiver {
	return &Receiver{
		expectedOrigin: expectedOrigin,
		done:           make(chan struct{}),
	}
}

// Post はメッセージを配送する。受け付けた場合のみtrueを返す。
// オリジン不一致、空トークン、2通目以降は黙って破棄する。
func (r *Receiver) Post(msg Message) bool {
	if msg.Origin != r.expectedOrigin || msg.Token == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accepted {
		return false
	}
	r.accepted = true
	r.token = msg.Token
	close(r.done)
	return true
}

// PostPage はハンドシェイク文書を解析し、その内容をPostする。
// ownOriginは受信側自身のオリジンで、文書のtargetOriginと一致しなければ配送されない。
// senderOriginは文書を配信したオリジンで、期待するオリジンとの照合に使う。
func (r *Receiver) PostPage(senderOrigin, ownOrigin string, page []byte) bool {
	msg, err := ParseTokenPage(page)
	if err != nil {
		return false
	}
	if msg.Origin != ownOrigin {
		return false
	}
	return r.Post(Message{Origin: senderOrigin, Token: msg.Token})
}

// Wait は受け付けたトークンを返す。届くまでブロックし、ctxの終了でのみ中断する。
func (r *Receiver) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
