package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogging は送信リクエストの結果を構造化ログに記録する
// ラッパーを返す。成功はDebug、エラーステータスとネットワーク失敗は
// Warnで記録する。
func NewRequestLogging(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.Warn("outbound request failed",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Duration("duration", duration),
					slog.String("error", err.Error()),
				)
				return nil, err
			}

			if resp.StatusCode >= http.StatusBadRequest {
				logger.Warn("outbound request returned error status",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Int("http_status", resp.StatusCode),
					slog.Duration("duration", duration),
				)
			} else {
				logger.Debug("outbound request completed",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.Int("http_status", resp.StatusCode),
					slog.Duration("duration", duration),
				)
			}
			return resp, nil
		})
	}
}
