package middleware

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// NewThrottle はクライアント側のレート制限を適用するラッパーを返す。
// トークンが利用可能になるまでリクエストのコンテキスト内で待機し、
// コンテキストのキャンセルや期限切れでエラーを返す。
// バックエンドの429を待ち受けるのではなくクライアント側で抑制する。
func NewThrottle(limiter *rate.Limiter) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limit wait failed: %w", err)
			}
			return next.RoundTrip(req)
		})
	}
}
