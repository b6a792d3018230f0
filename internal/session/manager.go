// Package session はセッションマネージャーを提供する。
// IDプロバイダーのイベントストリームから導出される現在のユーザーと
// セッションの状態を排他的に所有する。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/accountman/internal/authprovider"
	"github.com/hitoshi/accountman/internal/model"
)

// Manager は現在のユーザーとセッションの状態を管理する。
// プロバイダーがnilの場合は未設定モードで動作し、認証操作は
// AUTH_NOT_CONFIGUREDエラーで即座に失敗する。アプリ自体は
// 未認証の読み取り専用モードで起動を継続できる。
type Manager struct {
	provider authprovider.Provider
	logger   *slog.Logger

	mu          sync.RWMutex
	user        *model.User
	session     *model.Session
	loading     bool
	unsubscribe func()
}

// NewManager はManagerを生成する。providerはnilを許容する。
func NewManager(provider authprovider.Provider, logger *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		logger:   logger,
		loading:  provider != nil,
	}
}

// Start は起動時の初期化を行う。
// プロバイダーに既存セッションを1回問い合わせた後、残りのプロセス
// 寿命のあいだセッション変更イベントの購読を開始する。
// プロバイダー未設定の場合は何もせずloading=falseのまま返る。
func (m *Manager) Start(ctx context.Context) {
	if m.provider == nil {
		m.logger.Info("identity provider not configured, starting unauthenticated")
		return
	}

	// 1. 既存セッションの問い合わせ
	session, err := m.provider.CurrentSession(ctx)
	if err != nil {
		// 起動は失敗させない。未認証状態で継続する。
		m.logger.Warn("failed to restore existing session",
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	if session != nil {
		m.session = session
		m.user = session.User
	}
	m.loading = false
	m.mu.Unlock()

	if session != nil && session.User != nil {
		m.logger.Info("session restored",
			slog.String("user_id", session.User.ID),
		)
	}

	// 2. イベントストリームの購読
	m.mu.Lock()
	m.unsubscribe = m.provider.Subscribe(m.handleEvent)
	m.mu.Unlock()
}

// Stop はイベントストリームの購読を解除する。
// 再マウントをまたいだリスナーのリークを防ぐため、破棄時に必ず呼ぶ。
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// handleEvent はセッション変更イベントを状態に反映する。
//
// フィルタリングポリシー（重要な不変条件）:
// イベントストリームはトークンリフレッシュの内部サイクル中に
// セッションnilを発行することがある。明示的なSIGNED_OUTのみが
// 状態をクリアし、それ以外のセッションnilイベントは無視する
// （直前の状態を保持する）。セッション非nilのイベントは状態を
// 全体差し替えする。これによりバックグラウンドリフレッシュ中の
// 誤ログアウトを防ぐ。
func (m *Manager) handleEvent(event authprovider.Event, session *model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case event == authprovider.EventSignedOut:
		m.user = nil
		m.session = nil
		m.logger.Info("signed out")
	case session == nil:
		// 一時的なnilセッション: 無視して直前の状態を保持する
		m.logger.Debug("ignoring transient nil session event",
			slog.String("event", string(event)),
		)
	default:
		m.session = session
		m.user = session.User
		m.logger.Debug("session replaced",
			slog.String("event", string(event)),
		)
	}
}

// User は現在のユーザーを返す。未認証の場合はnil。
func (m *Manager) User() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Session は現在のセッションを返す。未認証の場合はnil。
func (m *Manager) Session() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Loading は初期化が完了していないあいだtrueを返す。
// 利用側はこれを確認せずに「未認証」を確定として扱ってはならない。
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// AccessToken は現在のセッションに埋め込まれたアクセストークンを返す。
// 未認証の場合は空文字列を返す。呼び出し側は空文字列をエラーではなく
// 「未認証」として扱うこと。
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ""
	}
	return m.session.AccessToken
}

// SignUp は新規ユーザーを登録する。
func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*model.Session, error) {
	if m.provider == nil {
		return nil, model.NewAuthNotConfiguredError()
	}
	return m.provider.SignUp(ctx, email, password, name)
}

// SignIn はメールアドレスとパスワードでサインインする。
func (m *Manager) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if m.provider == nil {
		return nil, model.NewAuthNotConfiguredError()
	}
	return m.provider.SignIn(ctx, email, password)
}

// SignInWithOAuth は外部OAuthフローの認証URLを返す。
// 呼び出し側はこのURLをブラウザで開き、コールバックで
// ExchangeOAuthCodeを完了させる。
func (m *Manager) SignInWithOAuth(oauthProvider, state string) (string, error) {
	if m.provider == nil {
		return "", model.NewAuthNotConfiguredError()
	}
	return m.provider.OAuthLoginURL(oauthProvider, state), nil
}

// ExchangeOAuthCode はOAuthコールバックの認可コードをセッションに交換する。
func (m *Manager) ExchangeOAuthCode(ctx context.Context, code string) (*model.Session, error) {
	if m.provider == nil {
		return nil, model.NewAuthNotConfiguredError()
	}
	return m.provider.ExchangeOAuthCode(ctx, code)
}

// SignOut は現在のセッションを破棄する。
func (m *Manager) SignOut(ctx context.Context) error {
	if m.provider == nil {
		return model.NewAuthNotConfiguredError()
	}
	return m.provider.SignOut(ctx)
}
