package middleware

import "net/http"

const (
	// HeaderAuthorization は認証トークンのヘッダー名。
	HeaderAuthorization = "Authorization"

	// HeaderAccountID はアクティブアカウントのルーティングヘッダー名。
	HeaderAccountID = "X-Account-ID"
)

// TokenSource は現在のアクセストークンを返す。
// 未認証の場合は空文字列を返す（エラーは返さない）。
type TokenSource func() string

// AccountIDSource は現在のアクティブアカウントIDを返す。
// 未選択の場合は空文字列を返す。
type AccountIDSource func() string

// NewBearerAuth は送信リクエストにBearerトークンを付与するラッパーを返す。
// Authorizationヘッダーが設定済みの場合は上書きしない。
// トークンが解決できない場合はヘッダーなしで送信する（静かなフォールバック）。
func NewBearerAuth(source TokenSource) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(HeaderAuthorization) != "" {
				return next.RoundTrip(req)
			}
			token := source()
			if token == "" {
				return next.RoundTrip(req)
			}
			clone := cloneRequest(req)
			clone.Header.Set(HeaderAuthorization, "Bearer "+token)
			return next.RoundTrip(clone)
		})
	}
}

// NewAccountRouting は送信リクエストにアクティブアカウントIDの
// ルーティングヘッダーを付与するラッパーを返す。
// アカウント未選択の場合はヘッダーを付与しない。
func NewAccountRouting(source AccountIDSource) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			accountID := source()
			if accountID == "" {
				return next.RoundTrip(req)
			}
			clone := cloneRequest(req)
			clone.Header.Set(HeaderAccountID, accountID)
			return next.RoundTrip(clone)
		})
	}
}
