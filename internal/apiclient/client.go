// Package apiclient はダッシュボードバックエンドAPIのクライアントを提供する。
// 認証ヘッダーやアンチリプレイ素材の付与はhttp.Client側の
// RoundTripperチェーンが担うため、ここではエンドポイントの呼び出しと
// レスポンスのデコードのみを行う。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/accountman/internal/model"
)

const (
	accountsPath = "/accounts"
	switchPath   = "/accounts/switch"
	profilePath  = "/profile"
	stylesPath   = "/styles/list"
	settingsPath = "/settings"
)

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientには認証・アンチリプレイ付与済みの共有クライアントを渡す。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// ListAccounts は連携アカウントの一覧を取得する。
func (c *Client) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := c.doJSON(ctx, http.MethodGet, accountsPath, nil, &accounts); err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	return accounts, nil
}

// switchResponse はアカウント切り替えAPIのレスポンス。
// warningは省略可能で、欠落は失敗を意味しない。
type switchResponse struct {
	Warning *string `json:"warning"`
}

// SwitchAccount はアクティブアカウントの切り替えをバックエンドに記録する。
// バックエンドが警告（例: 対象プラットフォームの外部トークン失効）を
// 返した場合はそれを返す。警告は成功であり、エラーとは区別される。
// 切り替えの成否はステータスのみで判定する。warningは省略可能なので、
// 空ボディや非JSONボディは警告なしの成功として扱う。
func (c *Client) SwitchAccount(ctx context.Context, accountID string) (string, error) {
	path := switchPath + "/" + url.PathEscape(accountID)
	resp, err := c.do(ctx, http.MethodPatch, path, nil)
	if err != nil {
		return "", fmt.Errorf("アカウントの切り替えに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	var result switchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil
	}
	if result.Warning != nil {
		return *result.Warning, nil
	}
	return "", nil
}

// GetProfile はクリエイタープロファイルを取得する。
func (c *Client) GetProfile(ctx context.Context) (model.CreatorProfile, error) {
	var p model.CreatorProfile
	if err := c.doJSON(ctx, http.MethodGet, profilePath, nil, &p); err != nil {
		return model.CreatorProfile{}, fmt.Errorf("プロファイルの取得に失敗しました: %w", err)
	}
	return p, nil
}

// ListStyles はスタイルプロファイルの一覧を取得する。
func (c *Client) ListStyles(ctx context.Context) ([]model.StyleProfile, error) {
	var styles []model.StyleProfile
	if err := c.doJSON(ctx, http.MethodGet, stylesPath, nil, &styles); err != nil {
		return nil, fmt.Errorf("スタイル一覧の取得に失敗しました: %w", err)
	}
	return styles, nil
}

// GetSettings はユーザー設定を取得する。
func (c *Client) GetSettings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	if err := c.doJSON(ctx, http.MethodGet, settingsPath, nil, &s); err != nil {
		return model.Settings{}, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	return s, nil
}

// SetActiveProfile はアクティブスタイルプロファイルをサーバー設定に記録する。
// profileIDがnilの場合はnullを送信して選択を解除する。
func (c *Client) SetActiveProfile(ctx context.Context, profileID *string) error {
	body := struct {
		ActiveProfileID *string `json:"active_profile_id"`
	}{ActiveProfileID: profileID}

	if err := c.doJSON(ctx, http.MethodPatch, settingsPath, body, nil); err != nil {
		return fmt.Errorf("アクティブプロファイルの更新に失敗しました: %w", err)
	}
	return nil
}

// doJSON はAPIリクエストを実行してレスポンスJSONをデコードする。
// bodyがnilでなければJSONとして送信する。outがnilの場合はボディを捨てる。
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}

// do はAPIリクエストを実行してステータスを確認する。2xx以外はエラー。
// 成功時のレスポンスボディのクローズは呼び出し側の責任。
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		c.logger.Error("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("APIがステータス %d を返しました", resp.StatusCode)
	}

	return resp, nil
}
