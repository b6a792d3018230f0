// Package profile はスタイルプロファイルとクリエイタープロファイルの
// レジストリを提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/accountman/internal/model"
)

// StyleAPI はスタイルレジストリが必要とするバックエンド操作のインターフェース。
// apiclient.Clientの部分集合として定義する。
type StyleAPI interface {
	ListStyles(ctx context.Context) ([]model.StyleProfile, error)
	GetSettings(ctx context.Context) (model.Settings, error)
	SetActiveProfile(ctx context.Context, profileID *string) error
}

// KV はアクティブスタイルプロファイルIDの永続化に必要なストアのインターフェース。
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// StyleRegistry は文体クローン用スタイルプロファイルの状態を所有する。
// アクティブIDはサーバー設定が正で、アカウントと異なり
// プライマリや先頭へのフォールバックは行わない。未選択（空文字列）は
// 正常な定常状態である。
type StyleRegistry struct {
	api      StyleAPI
	store    KV
	storeKey string
	logger   *slog.Logger

	mu       sync.RWMutex
	styles   []model.StyleProfile
	activeID string
	loading  bool
}

// NewStyleRegistry はStyleRegistryを生成する。storeKeyには
// store.KeyActiveStyleProfileIDを渡す。
func NewStyleRegistry(api StyleAPI, store KV, storeKey string, logger *slog.Logger) *StyleRegistry {
	return &StyleRegistry{
		api:      api,
		store:    store,
		storeKey: storeKey,
		logger:   logger,
		loading:  true,
	}
}

// Load は起動時の初期取得を行う。
// スタイル一覧とサーバー設定を取得し、設定のアクティブIDを採用して
// ローカルにも書き戻す。設定が一覧に存在しないIDを指す場合は
// 未選択として扱う。取得失敗時は空状態に縮退し、エラーはログのみに
// 記録する（起動は失敗させない）。
func (r *StyleRegistry) Load(ctx context.Context) {
	// 1. スタイル一覧を取得
	styles, err := r.api.ListStyles(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch style profiles, degrading to empty list",
			slog.String("error", err.Error()),
		)
		r.degrade()
		return
	}

	// 2. サーバー設定からアクティブIDを取得
	settings, err := r.api.GetSettings(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch settings, style selection unavailable",
			slog.String("error", err.Error()),
		)
		r.degrade()
		return
	}

	activeID := ""
	if settings.ActiveProfileID != nil {
		activeID = *settings.ActiveProfileID
	}

	// 3. 一覧に存在しないIDは未選択として扱う
	if activeID != "" && !containsStyle(styles, activeID) {
		r.logger.Warn("active style profile not in fetched list, treating as none",
			slog.String("profile_id", activeID),
		)
		activeID = ""
	}

	r.mu.Lock()
	r.styles = styles
	r.activeID = activeID
	r.loading = false
	// 4. ローカルへの書き戻しはロック下で不可分に行う
	r.persistActive(activeID)
	r.mu.Unlock()

	r.logger.Info("style profiles loaded",
		slog.Int("style_count", len(styles)),
		slog.String("active_profile_id", activeID),
	)
}

// SetActiveProfile はアクティブスタイルプロファイルを設定する。
// nilを渡すと選択を解除する。サーバー設定を更新してからローカル状態と
// 永続値を更新する。サーバー失敗時は状態を一切変更せずエラーを返す。
func (r *StyleRegistry) SetActiveProfile(ctx context.Context, profileID *string) error {
	if profileID != nil {
		r.mu.RLock()
		known := containsStyle(r.styles, *profileID)
		r.mu.RUnlock()
		if !known {
			return model.NewProfileNotFoundError()
		}
	}

	if err := r.api.SetActiveProfile(ctx, profileID); err != nil {
		return fmt.Errorf("set active profile failed: %w", err)
	}

	activeID := ""
	if profileID != nil {
		activeID = *profileID
	}

	r.mu.Lock()
	r.activeID = activeID
	r.persistActive(activeID)
	r.mu.Unlock()

	r.logger.Info("active style profile updated",
		slog.String("profile_id", activeID),
	)
	return nil
}

// Reset はセッション終了時に状態を破棄する。
func (r *StyleRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.styles = nil
	r.activeID = ""
	r.loading = false
}

// Styles はスタイルプロファイル一覧を返す。
func (r *StyleRegistry) Styles() []model.StyleProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.StyleProfile, len(r.styles))
	copy(out, r.styles)
	return out
}

// ActiveProfileID はアクティブスタイルプロファイルのIDを返す。未選択は空文字列。
func (r *StyleRegistry) ActiveProfileID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// ActiveProfile はアクティブスタイルプロファイルを返す。未選択の場合はnil。
func (r *StyleRegistry) ActiveProfile() *model.StyleProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.styles {
		if s.ID == r.activeID {
			style := s
			return &style
		}
	}
	return nil
}

// Loading は初期取得が完了していないあいだtrueを返す。
func (r *StyleRegistry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

func (r *StyleRegistry) degrade() {
	r.mu.Lock()
	r.styles = nil
	r.activeID = ""
	r.loading = false
	r.mu.Unlock()
}

// persistActive は解決済みのアクティブIDをストアに書き戻す。
// 空文字列の場合はキーを削除する。書き込み失敗はログのみに記録する。
// 呼び出し元はmuを保持していなければならない。
func (r *StyleRegistry) persistActive(profileID string) {
	var err error
	if profileID == "" {
		err = r.store.Remove(r.storeKey)
	} else {
		err = r.store.Set(r.storeKey, profileID)
	}
	if err != nil {
		r.logger.Error("failed to persist active style profile id",
			slog.String("error", err.Error()),
		)
	}
}

func containsStyle(styles []model.StyleProfile, id string) bool {
	for _, s := range styles {
		if s.ID == id {
			return true
		}
	}
	return false
}
