// Package localserver はローカルのデバッグ・コールバック用リスナーを提供する。
// ヘルスチェック、Prometheusスクレイプ、OAuthリダイレクトの受け口を持つ。
package localserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/accountman/internal/metrics"
	"github.com/hitoshi/accountman/internal/model"
)

// OAuthExchanger は認可コードをセッションに交換する操作のインターフェース。
// session.Managerの部分集合として定義する。
type OAuthExchanger interface {
	ExchangeOAuthCode(ctx context.Context, code string) (*model.Session, error)
}

// Deps はNewRouterに必要な依存関係をまとめた構造体。
type Deps struct {
	Exchanger OAuthExchanger
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// NewRouter はローカルリスナーのルーティングを構成したchi.Routerを返す。
//
//	GET /health        - ヘルスチェック
//	GET /metrics       - Prometheusスクレイプ
//	GET /auth/callback - OAuthリダイレクトの受け口（code交換）
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	r.Get("/auth/callback", handleOAuthCallback(deps.Exchanger, deps.Logger))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleOAuthCallback はIDプロバイダーからのリダイレクトを受け取り、
// 認可コードをセッションに交換する。
func handleOAuthCallback(exchanger OAuthExchanger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. プロバイダーからのエラーを確認
		if errCode := r.URL.Query().Get("error"); errCode != "" {
			logger.Warn("oauth callback returned error",
				slog.String("error", errCode),
				slog.String("description", r.URL.Query().Get("error_description")),
			)
			http.Error(w, "サインインがキャンセルされました。", http.StatusBadRequest)
			return
		}

		// 2. 認可コードを取得
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "認可コードがありません。", http.StatusBadRequest)
			return
		}

		// 3. コードをセッションに交換
		if _, err := exchanger.ExchangeOAuthCode(r.Context(), code); err != nil {
			logger.Error("oauth code exchange failed",
				slog.String("error", err.Error()),
			)
			http.Error(w, "サインインに失敗しました。", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>サインインが完了しました。このウィンドウを閉じてください。</body></html>"))
	}
}
