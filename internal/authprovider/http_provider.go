package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/accountman/internal/model"
)

const (
	signupPath    = "/auth/v1/signup"
	tokenPath     = "/auth/v1/token"
	logoutPath    = "/auth/v1/logout"
	authorizePath = "/auth/v1/authorize"

	// minRefreshWait はリフレッシュループの最短待機時間。
	// 期限計算の異常値でタイトループに陥らないための下限。
	minRefreshWait = 10 * time.Second
)

// Config はHTTPProviderの設定。
type Config struct {
	BaseURL string
	AnonKey string
	// RedirectURL はOAuthフローの固定リダイレクト先。
	// 動的なオリジンからは組み立てず、環境で選択された定数を使用する。
	RedirectURL string
	// RefreshMargin は期限切れ前にリフレッシュを開始する余裕時間。
	RefreshMargin time.Duration
}

// HTTPProvider はGoTrue互換のREST APIを持つIDプロバイダーのアダプター。
// セッションブロブをストアに永続化し、セッション変更イベントを
// 購読者に配信する。
type HTTPProvider struct {
	config     Config
	httpClient *http.Client
	store      BlobStore
	blobKey    string
	logger     *slog.Logger

	mu        sync.Mutex
	session   *model.Session
	listeners map[int]Listener
	nextID    int
}

// NewHTTPProvider はHTTPProviderを生成する。
func NewHTTPProvider(config Config, httpClient *http.Client, store BlobStore, logger *slog.Logger) *HTTPProvider {
	if config.RefreshMargin <= 0 {
		config.RefreshMargin = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{
		config:     config,
		httpClient: httpClient,
		store:      store,
		blobKey:    SessionKey(config.BaseURL),
		logger:     logger,
		listeners:  make(map[int]Listener),
	}
}

// tokenResponse はプロバイダーのトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			DisplayName string `json:"display_name"`
			Name        string `json:"name"`
			AvatarURL   string `json:"avatar_url"`
		} `json:"user_metadata"`
	} `json:"user"`
}

// toSession はトークンレスポンスをドメインのセッションに変換する。
func (tr *tokenResponse) toSession(now time.Time) *model.Session {
	displayName := tr.User.UserMetadata.DisplayName
	if displayName == "" {
		displayName = tr.User.UserMetadata.Name
	}

	session := &model.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		User: &model.User{
			ID:          tr.User.ID,
			Email:       tr.User.Email,
			DisplayName: displayName,
			AvatarURL:   tr.User.UserMetadata.AvatarURL,
		},
	}
	if tr.ExpiresIn > 0 {
		session.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return session
}

// SignUp は新規ユーザーを登録し、セッションを発行する。
func (p *HTTPProvider) SignUp(ctx context.Context, email, password, name string) (*model.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": name},
	}

	var tr tokenResponse
	if err := p.post(ctx, signupPath, "", body, &tr); err != nil {
		return nil, fmt.Errorf("sign up failed: %w", err)
	}

	session := tr.toSession(time.Now())
	p.setSession(session)
	p.emit(EventSignedIn, session)
	return session, nil
}

// SignIn はメールアドレスとパスワードでサインインし、セッションを発行する。
func (p *HTTPProvider) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var tr tokenResponse
	if err := p.post(ctx, tokenPath, "grant_type=password", body, &tr); err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}

	session := tr.toSession(time.Now())
	p.setSession(session)
	p.emit(EventSignedIn, session)
	return session, nil
}

// OAuthLoginURL は外部OAuthフローの認証URLを生成する。
func (p *HTTPProvider) OAuthLoginURL(oauthProvider, state string) string {
	params := url.Values{
		"provider":    {oauthProvider},
		"redirect_to": {p.config.RedirectURL},
		"state":       {state},
	}
	return p.config.BaseURL + authorizePath + "?" + params.Encode()
}

// ExchangeOAuthCode はOAuthコールバックの認可コードをセッションに交換する。
func (p *HTTPProvider) ExchangeOAuthCode(ctx context.Context, code string) (*model.Session, error) {
	body := map[string]any{
		"auth_code":   code,
		"redirect_to": p.config.RedirectURL,
	}

	var tr tokenResponse
	if err := p.post(ctx, tokenPath, "grant_type=authorization_code", body, &tr); err != nil {
		return nil, fmt.Errorf("oauth code exchange failed: %w", err)
	}

	session := tr.toSession(time.Now())
	p.setSession(session)
	p.emit(EventSignedIn, session)
	return session, nil
}

// SignOut は現在のセッションを破棄する。
// プロバイダーへの通知が失敗してもローカルのセッションは必ず破棄し、
// SIGNED_OUTイベントを発行する。
func (p *HTTPProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := ""
	if p.session != nil {
		token = p.session.AccessToken
	}
	p.mu.Unlock()

	if token != "" {
		if err := p.post(ctx, logoutPath, "", nil, nil); err != nil {
			p.logger.Warn("provider logout request failed, clearing local session anyway",
				slog.String("error", err.Error()),
			)
		}
	}

	p.clearSession()
	p.emit(EventSignedOut, nil)
	return nil
}

// CurrentSession は既存のセッションを返す。
// メモリ上になければ永続化されたブロブから復元する。アクセストークンが
// 期限切れでリフレッシュトークンを持つ場合はリフレッシュを試みる。
// 有効なセッションが得られない場合はnilを返す（エラーではない）。
func (p *HTTPProvider) CurrentSession(ctx context.Context) (*model.Session, error) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	// 1. ブロブからの復元
	if session == nil {
		raw, ok := p.store.Get(p.blobKey)
		if !ok || raw == "" {
			return nil, nil
		}
		restored, err := parseBlob(raw)
		if err != nil {
			p.logger.Warn("failed to parse persisted session blob, discarding",
				slog.String("error", err.Error()),
			)
			return nil, nil
		}
		session = restored
		p.mu.Lock()
		p.session = session
		p.mu.Unlock()
	}

	// 2. 期限切れの場合はリフレッシュを試みる
	if session.Expired(time.Now()) {
		if session.RefreshToken == "" {
			return nil, nil
		}
		refreshed, err := p.refresh(ctx, session.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh expired session: %w", err)
		}
		return refreshed, nil
	}

	return session, nil
}

// Subscribe はセッション変更イベントのリスナーを登録し、解除用の関数を返す。
func (p *HTTPProvider) Subscribe(fn Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// StartAutoRefresh はバックグラウンドのトークン自動リフレッシュループを
// 起動する。期限のRefreshMargin前にリフレッシュし、TOKEN_REFRESHEDを
// 発行する。一時的な失敗時はセッションnilのTOKEN_REFRESHEDを発行して
// リトライする（購読側はこれを無視する）。ctxのキャンセルで停止する。
func (p *HTTPProvider) StartAutoRefresh(ctx context.Context) {
	go func() {
		for {
			wait := p.nextRefreshWait()

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			p.mu.Lock()
			refreshToken := ""
			if p.session != nil {
				refreshToken = p.session.RefreshToken
			}
			p.mu.Unlock()

			if refreshToken == "" {
				continue
			}

			if _, err := p.refresh(ctx, refreshToken); err != nil {
				if ctx.Err() != nil {
					return
				}
				// 一時的な失敗: セッションnilのイベントを発行してリトライ。
				// 購読側のフィルタリングポリシーが誤ログアウトを防ぐ。
				p.logger.Warn("token refresh failed, will retry",
					slog.String("error", err.Error()),
				)
				p.emit(EventTokenRefreshed, nil)
			}
		}
	}()
}

// nextRefreshWait は次のリフレッシュまでの待機時間を計算する。
func (p *HTTPProvider) nextRefreshWait() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil || p.session.ExpiresAt.IsZero() {
		return minRefreshWait
	}

	wait := time.Until(p.session.ExpiresAt) - p.config.RefreshMargin
	if wait < minRefreshWait {
		wait = minRefreshWait
	}
	return wait
}

// refresh はリフレッシュトークンで新しいセッションを取得する。
// 成功時はTOKEN_REFRESHEDイベントを新しいセッションとともに発行する。
func (p *HTTPProvider) refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]any{
		"refresh_token": refreshToken,
	}

	var tr tokenResponse
	if err := p.post(ctx, tokenPath, "grant_type=refresh_token", body, &tr); err != nil {
		return nil, err
	}

	session := tr.toSession(time.Now())
	p.setSession(session)
	p.emit(EventTokenRefreshed, session)
	return session, nil
}

// setSession はセッションをメモリとストアの両方に反映する。
func (p *HTTPProvider) setSession(session *model.Session) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	blob, err := marshalBlob(session)
	if err != nil {
		p.logger.Error("failed to marshal session blob", slog.String("error", err.Error()))
		return
	}
	if err := p.store.Set(p.blobKey, blob); err != nil {
		p.logger.Error("failed to persist session blob", slog.String("error", err.Error()))
	}
}

// clearSession はメモリとストアの両方からセッションを破棄する。
func (p *HTTPProvider) clearSession() {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	if err := p.store.Remove(p.blobKey); err != nil {
		p.logger.Error("failed to remove session blob", slog.String("error", err.Error()))
	}
}

// emit は登録済みの全リスナーにイベントを配信する。
// リスナーはロックの外で呼び出す。
func (p *HTTPProvider) emit(event Event, session *model.Session) {
	p.mu.Lock()
	fns := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(event, session)
	}
}

// post はプロバイダーのエンドポイントにJSONリクエストを送信する。
// rawQueryはクエリ文字列（grant_type等）、outがnilの場合はレスポンス
// ボディを読み捨てる。
func (p *HTTPProvider) post(ctx context.Context, path, rawQuery string, body any, out any) error {
	reqURL := p.config.BaseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.config.AnonKey)

	p.mu.Lock()
	if p.session != nil && p.session.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.session.AccessToken)
	}
	p.mu.Unlock()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse provider response: %w", err)
		}
	}

	return nil
}

// compile-time interface check
var _ Provider = (*HTTPProvider)(nil)
