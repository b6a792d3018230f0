package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/accountman/internal/events"
	"github.com/hitoshi/accountman/internal/model"
)

// maxErrorBodyBytes はエラーレスポンスボディの最大読み取りサイズ。
const maxErrorBodyBytes = 1 << 20

// BrokenAccountPublisher はアカウント連携切れ通知の発行に必要なインターフェース。
// events.Busの部分集合として定義する。
type BrokenAccountPublisher interface {
	PublishAccountBroken(e events.AccountBroken)
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// brokenAccountBody はアカウント連携切れ（403 + ACCOUNT_BROKEN）の
// レスポンスボディ。
type brokenAccountBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Platform string `json:"platform"`
}

// NewResponseGuard はレスポンスの検査と無害化を行うラッパーを返す。
//
// サーバーエラー（5xx）はスタックトレース等の漏出を防ぐため、
// ボディを統一フォーマットの一般的なメッセージに置き換える
// （ステータスコードは維持し、詳細はログのみに記録する）。
// 403でボディのコードがACCOUNT_BROKENの場合は、通知バスへ
// ちょうど1回イベントを発行したうえで元のレスポンスをそのまま通す。
// それ以外のステータスおよびネットワークエラーは変更せずに通す。
func NewResponseGuard(publisher BrokenAccountPublisher, logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := next.RoundTrip(req)
			if err != nil {
				// ネットワークエラーは呼び出し元がそのまま扱う
				return nil, err
			}

			switch {
			case resp.StatusCode >= http.StatusInternalServerError:
				return sanitizeServerError(resp, logger), nil
			case resp.StatusCode == http.StatusForbidden:
				return detectBrokenAccount(resp, publisher, logger), nil
			default:
				return resp, nil
			}
		})
	}
}

// sanitizeServerError は5xxレスポンスのボディを一般的なメッセージに
// 置き換える。元のボディはログのみに記録する。
func sanitizeServerError(resp *http.Response, logger *slog.Logger) *http.Response {
	original, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()

	logger.Error("server error response sanitized",
		slog.Int("http_status", resp.StatusCode),
		slog.String("url", resp.Request.URL.Path),
		slog.String("original_body", string(original)),
	)

	apiErr := model.NewInternalError()
	replacement, _ := json.Marshal(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})

	resp.Body = io.NopCloser(bytes.NewReader(replacement))
	resp.ContentLength = int64(len(replacement))
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

// detectBrokenAccount は403レスポンスを検査し、コードがACCOUNT_BROKENの
// 場合に通知イベントを1回発行する。レスポンス自体は変更せずに返す。
func detectBrokenAccount(resp *http.Response, publisher BrokenAccountPublisher, logger *slog.Logger) *http.Response {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var parsed brokenAccountBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Code != model.ErrCodeAccountBroken {
		// 通常の403（認可拒否）はそのまま通す
		return resp
	}

	logger.Warn("broken account detected",
		slog.String("platform", parsed.Platform),
		slog.String("message", parsed.Message),
	)
	publisher.PublishAccountBroken(events.AccountBroken{
		Platform: model.Platform(parsed.Platform),
		Message:  parsed.Message,
	})
	return resp
}
