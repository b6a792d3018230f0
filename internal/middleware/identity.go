package middleware

import "net/http"

const (
	// HeaderClientID は呼び出し元クライアントの識別ヘッダー名。
	HeaderClientID = "X-Client-ID"

	// HeaderRequestedWith はアンチCSRFマーカーのヘッダー名。
	// バックエンドは単純リクエストを拒否するためにこの存在を検証する。
	HeaderRequestedWith = "X-Requested-With"

	// requestedWithValue はアンチCSRFマーカーの固定値。
	requestedWithValue = "XMLHttpRequest"
)

// NewClientIdentity はすべての送信リクエストにクライアント識別ヘッダーと
// アンチCSRFマーカーを付与するラッパーを返す。
func NewClientIdentity(clientID string) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			clone := cloneRequest(req)
			clone.Header.Set(HeaderClientID, clientID)
			clone.Header.Set(HeaderRequestedWith, requestedWithValue)
			return next.RoundTrip(clone)
		})
	}
}
