// Package account は連携アカウントのレジストリを提供する。
// アカウント一覧の取得、アクティブアカウントの導出と永続化、
// 切り替え・再取得の各操作を所有する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/accountman/internal/model"
	"github.com/hitoshi/accountman/internal/selection"
)

// API はレジストリが必要とするバックエンド操作のインターフェース。
// apiclient.Clientの部分集合として定義する。
type API interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SwitchAccount(ctx context.Context, accountID string) (warning string, err error)
}

// KV はアクティブアカウントIDの永続化に必要なストアのインターフェース。
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Registry は連携アカウントの状態を所有するプロセススコープのコンテナ。
// 認証セッション1つにスコープされ、セッション終了時にResetで破棄する。
type Registry struct {
	api      API
	store    KV
	storeKey string
	logger   *slog.Logger

	mu       sync.RWMutex
	accounts []model.Account
	activeID string
	loading  bool

	// seq/lastApplied は取得系操作の適用順序を守るシーケンス番号。
	// 遅れて解決した古いrefreshが新しい状態を上書きするのを防ぐ。
	seq         uint64
	lastApplied uint64
}

// NewRegistry はRegistryを生成する。storeKeyにはレジストリが所有する
// 永続キー（store.KeyActiveAccountID）を渡す。
func NewRegistry(api API, store KV, storeKey string, logger *slog.Logger) *Registry {
	return &Registry{
		api:      api,
		store:    store,
		storeKey: storeKey,
		logger:   logger,
		loading:  true,
	}
}

// Load は起動時の初期取得を行う。
// アカウント一覧を取得して合成defaultプラットフォームを除外し、
// 永続化済みID → プライマリ → 先頭 → なし の優先順位でアクティブIDを
// 解決して書き戻す。取得失敗時は空状態に縮退し、エラーはログのみに
// 記録する（起動は失敗させない）。
func (r *Registry) Load(ctx context.Context) {
	seq := r.nextSeq()

	fetched, err := r.api.ListAccounts(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch accounts, degrading to empty list",
			slog.String("error", err.Error()),
		)
		r.mu.Lock()
		if seq > r.lastApplied {
			r.lastApplied = seq
			r.accounts = nil
			r.activeID = ""
		}
		r.loading = false
		r.mu.Unlock()
		return
	}

	visible := model.FilterVisible(fetched)
	persisted, _ := r.store.Get(r.storeKey)
	resolved := resolveActive(visible, persisted)

	r.mu.Lock()
	if seq > r.lastApplied {
		r.lastApplied = seq
		r.accounts = visible
		r.activeID = resolved
		// 適用と永続化はロック下で不可分に行う。古い操作の永続化が
		// 新しい適用結果を上書きしてはならない。
		r.persistActive(resolved)
	}
	r.loading = false
	r.mu.Unlock()

	r.logger.Info("accounts loaded",
		slog.Int("account_count", len(visible)),
		slog.String("active_account_id", resolved),
	)
}

// SwitchAccount はアクティブアカウントを切り替える。
// バックエンドに切り替えを記録してからローカル状態と永続値を更新する。
// バックエンド失敗時は状態を一切変更せずエラーを返す（楽観的更新なし）。
// バックエンドが警告（例: 対象プラットフォームの外部トークン失効）を
// 返した場合は、成功として扱いつつ警告文字列を区別して返す。
func (r *Registry) SwitchAccount(ctx context.Context, accountID string) (string, error) {
	r.mu.RLock()
	known := false
	for _, a := range r.accounts {
		if a.ID == accountID {
			known = true
			break
		}
	}
	r.mu.RUnlock()

	if !known {
		return "", model.NewAccountNotFoundError(accountID)
	}

	warning, err := r.api.SwitchAccount(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("switch account failed: %w", err)
	}

	r.mu.Lock()
	r.activeID = accountID
	// 切り替えは常に最新の書き込みとして扱う
	r.seq++
	r.lastApplied = r.seq
	r.persistActive(accountID)
	r.mu.Unlock()

	if warning != "" {
		r.logger.Warn("account switched with warning",
			slog.String("account_id", accountID),
			slog.String("warning", warning),
		)
	} else {
		r.logger.Info("account switched",
			slog.String("account_id", accountID),
		)
	}

	return warning, nil
}

// RefreshAccounts はアカウント一覧を再取得して返す。
// 現在のアクティブIDが新しいリストから消えていた場合は
// フォールバックルール（プライマリ → 先頭 → なし）を再適用して
// 永続化する。SwitchAccountと並行して呼ばれても安全で、
// 適用時点の最新スナップショットからのみ導出するため、
// 直近の切り替えが選んだIDを古いrefreshが復活させることはない。
func (r *Registry) RefreshAccounts(ctx context.Context) ([]model.Account, error) {
	seq := r.nextSeq()

	fetched, err := r.api.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh accounts failed: %w", err)
	}

	visible := model.FilterVisible(fetched)

	r.mu.Lock()
	if seq <= r.lastApplied {
		// より新しい操作が適用済み。リストだけ返して状態は触らない。
		r.mu.Unlock()
		return visible, nil
	}
	r.lastApplied = seq
	r.accounts = visible

	// 適用時点の最新のアクティブIDから再導出する
	resolved := resolveActive(visible, r.activeID)
	changed := resolved != r.activeID
	r.activeID = resolved
	r.persistActive(resolved)
	r.mu.Unlock()

	if changed {
		r.logger.Info("active account re-resolved after refresh",
			slog.String("active_account_id", resolved),
		)
	}

	return visible, nil
}

// Reset はセッション終了時に状態を破棄する。
// 永続化された最終選択は次回サインイン時の復元用に残す。
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = nil
	r.activeID = ""
	r.loading = false
	r.seq++
	r.lastApplied = r.seq
}

// Accounts は公開用のアカウント一覧を返す。
// 合成defaultプラットフォームは含まれない。
func (r *Registry) Accounts() []model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// ActiveAccountID はアクティブアカウントのIDを返す。未選択は空文字列。
func (r *Registry) ActiveAccountID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// ActiveAccount はアクティブアカウントを返す。未選択の場合はnil。
func (r *Registry) ActiveAccount() *model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.ID == r.activeID {
			account := a
			return &account
		}
	}
	return nil
}

// IsMultiAccount は複数アカウントが連携されている場合にtrueを返す。
func (r *Registry) IsMultiAccount() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts) > 1
}

// Loading は初期取得が完了していないあいだtrueを返す。
// 利用側はこれを確認せずに空リストを「確定した空」として扱ってはならない。
func (r *Registry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// nextSeq は取得系操作のシーケンス番号を採番する。
func (r *Registry) nextSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// persistActive は解決済みのアクティブIDをストアに書き戻す。
// 空文字列の場合はキーを削除する。書き込み失敗はログのみに記録する。
// メモリ上の適用と永続値の書き込みを不可分にするため、
// 呼び出し元はmuを保持していなければならない。
func (r *Registry) persistActive(accountID string) {
	var err error
	if accountID == "" {
		err = r.store.Remove(r.storeKey)
	} else {
		err = r.store.Set(r.storeKey, accountID)
	}
	if err != nil {
		r.logger.Error("failed to persist active account id",
			slog.String("error", err.Error()),
		)
	}
}

// resolveActive はアカウント一覧に共有フォールバックルールを適用する。
func resolveActive(accounts []model.Account, persistedID string) string {
	return selection.ResolveActive(accounts, persistedID,
		func(a model.Account) string { return a.ID },
		func(a model.Account) bool { return a.IsPrimary },
	)
}
