package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, account, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthNotConfigured = "AUTH_NOT_CONFIGURED"
	ErrCodeAccountBroken     = "ACCOUNT_BROKEN"
	ErrCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrCodeSwitchFailed      = "SWITCH_FAILED"
	ErrCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// NewAuthNotConfiguredError はIDプロバイダー未設定エラーを生成する。
// デプロイにプロバイダー設定がない場合、アプリは未認証モードで起動し、
// 認証操作のみがこのエラーで失敗する。
func NewAuthNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthNotConfigured,
		Message:  "IDプロバイダーが設定されていません。",
		Category: "auth",
		Action:   "PROVIDER_URL と PROVIDER_ANON_KEY を設定してください。",
	}
}

// NewAccountNotFoundError は指定アカウント未検出エラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "account",
		Action:   "アカウント一覧を更新してから再度お試しください。",
	}
}

// NewSwitchFailedError はアカウント切り替え失敗エラーを生成する。
// 失敗時はローカル状態を変更しない。
func NewSwitchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSwitchFailed,
		Message:  fmt.Sprintf("アカウントの切り替えに失敗しました: %s", reason),
		Category: "account",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAccountBrokenError はアカウント連携切れエラーを生成する。
// バックエンドが403でACCOUNT_BROKENコードを返した場合に対応する。
func NewAccountBrokenError(platform Platform, message string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountBroken,
		Message:  message,
		Category: "account",
		Action:   fmt.Sprintf("%s アカウントを再連携してください。", platform),
	}
}

// NewProfileNotFoundError はプロファイル未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロファイルが見つかりません。",
		Category: "profile",
		Action:   "プロファイルを作成してから再度お試しください。",
	}
}

// NewInternalError は内部エラーの統一表現を生成する。
// サーバー内部の詳細はログのみに記録し、ユーザーには一般的な
// メッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternalError,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
