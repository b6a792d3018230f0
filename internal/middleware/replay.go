package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// HeaderRequestTimestamp はリクエスト発行時刻（unixミリ秒）のヘッダー名。
	HeaderRequestTimestamp = "X-Request-Timestamp"

	// HeaderRequestNonce はリクエストごとに一意なノンスのヘッダー名。
	HeaderRequestNonce = "X-Request-Nonce"
)

// NewReplayGuard は状態変更メソッド（POST, PUT, PATCH, DELETE）の
// リクエストにタイムスタンプとノンスを付与するラッパーを返す。
// 安全なメソッドには付与しない。ノンスはリクエストごとに新規生成され、
// リトライでも再利用されない。
func NewReplayGuard() func(http.RoundTripper) http.RoundTripper {
	return newReplayGuard(time.Now)
}

// newReplayGuard はテスト用に時刻関数を差し替え可能にした実体。
func newReplayGuard(now func() time.Time) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !isMutatingMethod(req.Method) {
				return next.RoundTrip(req)
			}
			clone := cloneRequest(req)
			clone.Header.Set(HeaderRequestTimestamp, strconv.FormatInt(now().UnixMilli(), 10))
			clone.Header.Set(HeaderRequestNonce, uuid.NewString())
			return next.RoundTrip(clone)
		})
	}
}
