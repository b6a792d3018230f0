// Package authprovider は外部IDプロバイダーのアダプターを提供する。
// サインアップ、サインイン、OAuth、サインアウトの各呼び出しと、
// セッション変更イベントストリームの購読を抽象化する。
package authprovider

import (
	"context"

	"github.com/hitoshi/accountman/internal/model"
)

// Event はプロバイダーが発行するセッション変更イベントの種別を表す。
type Event string

const (
	// EventSignedIn はサインイン成功時に発行される。
	EventSignedIn Event = "SIGNED_IN"
	// EventSignedOut は明示的なサインアウト時に発行される。
	// セッションを破棄してよいのはこのイベントのみ。
	EventSignedOut Event = "SIGNED_OUT"
	// EventTokenRefreshed はトークンリフレッシュ時に発行される。
	// リフレッシュサイクル中はセッションがnilのまま発行されることがあり、
	// 購読側はこれをサインアウトとして扱ってはならない。
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	// EventUserUpdated はユーザー情報の更新時に発行される。
	EventUserUpdated Event = "USER_UPDATED"
)

// Listener はセッション変更イベントの購読関数。
type Listener func(event Event, session *model.Session)

// Provider は外部IDプロバイダーのインターフェース。
// 実装はHTTPProvider。テストでは関数フィールドのモックに差し替える。
type Provider interface {
	// SignUp は新規ユーザーを登録し、セッションを返す。
	SignUp(ctx context.Context, email, password, name string) (*model.Session, error)
	// SignIn はメールアドレスとパスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	// OAuthLoginURL は外部OAuthフローの認証URLを生成する。
	// リダイレクト先は環境で固定された定数を使用する。
	OAuthLoginURL(oauthProvider, state string) string
	// ExchangeOAuthCode はOAuthコールバックの認可コードをセッションに交換する。
	ExchangeOAuthCode(ctx context.Context, code string) (*model.Session, error)
	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error
	// CurrentSession は既存のセッションを返す。存在しない場合はnilを返す。
	CurrentSession(ctx context.Context) (*model.Session, error)
	// Subscribe はセッション変更イベントのリスナーを登録し、
	// 解除用の関数を返す。
	Subscribe(fn Listener) (unsubscribe func())
}
