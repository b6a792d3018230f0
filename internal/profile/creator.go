package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/accountman/internal/model"
)

// CreatorAPI はクリエイタープロファイルの取得に必要な
// バックエンド操作のインターフェース。
type CreatorAPI interface {
	GetProfile(ctx context.Context) (model.CreatorProfile, error)
}

// Sanitizer は自由記述フィールドのサニタイズに必要なインターフェース。
// security.TextSanitizerServiceの部分集合として定義する。
type Sanitizer interface {
	SanitizeText(raw string) string
}

// CreatorRegistry はユーザーごとに1件のクリエイタープロファイルを所有する。
// 保存はバックエンドの責務であり、ここでは取得済みプロファイルへの
// ローカルなシャローマージのみを行う（再取得はしない）。
type CreatorRegistry struct {
	api       CreatorAPI
	sanitizer Sanitizer
	logger    *slog.Logger

	mu      sync.RWMutex
	profile *model.CreatorProfile
	loading bool
}

// NewCreatorRegistry はCreatorRegistryを生成する。
func NewCreatorRegistry(api CreatorAPI, sanitizer Sanitizer, logger *slog.Logger) *CreatorRegistry {
	return &CreatorRegistry{
		api:       api,
		sanitizer: sanitizer,
		logger:    logger,
		loading:   true,
	}
}

// Load は起動時の初期取得を行う。
// 取得失敗時はプロファイルなしに縮退し、エラーはログのみに記録する。
func (r *CreatorRegistry) Load(ctx context.Context) {
	p, err := r.api.GetProfile(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch creator profile",
			slog.String("error", err.Error()),
		)
		r.mu.Lock()
		r.profile = nil
		r.loading = false
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.profile = &p
	r.loading = false
	r.mu.Unlock()
}

// Refresh はプロファイルをバックエンドから再取得する。
// Loadと異なり失敗はエラーとして返し、状態は変更しない。
func (r *CreatorRegistry) Refresh(ctx context.Context) (model.CreatorProfile, error) {
	p, err := r.api.GetProfile(ctx)
	if err != nil {
		return model.CreatorProfile{}, fmt.Errorf("refresh creator profile failed: %w", err)
	}

	r.mu.Lock()
	r.profile = &p
	r.loading = false
	r.mu.Unlock()

	return p, nil
}

// UpdateProfile は取得済みプロファイルへ部分更新をシャローマージする。
// nilのフィールドは変更しない。自由記述フィールドはマージ前に
// サニタイズされる。バックエンドへの保存や再取得は行わない。
// プロファイルが未取得の場合はPROFILE_NOT_FOUNDを返す。
func (r *CreatorRegistry) UpdateProfile(update model.CreatorProfileUpdate) (model.CreatorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profile == nil {
		return model.CreatorProfile{}, model.NewProfileNotFoundError()
	}

	if update.DisplayName != nil {
		r.profile.DisplayName = r.sanitizer.SanitizeText(*update.DisplayName)
	}
	if update.Title != nil {
		r.profile.Title = r.sanitizer.SanitizeText(*update.Title)
	}
	if update.AvatarURL != nil {
		r.profile.AvatarURL = *update.AvatarURL
	}
	if update.Niches != nil {
		niches := make([]string, 0, len(update.Niches))
		for _, n := range update.Niches {
			niches = append(niches, r.sanitizer.SanitizeText(n))
		}
		r.profile.Niches = niches
	}
	if update.BrandVoice != nil {
		r.profile.BrandVoice = r.sanitizer.SanitizeText(*update.BrandVoice)
	}

	return *r.profile, nil
}

// Profile は取得済みプロファイルのコピーを返す。未取得の場合はnil。
func (r *CreatorRegistry) Profile() *model.CreatorProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.profile == nil {
		return nil
	}
	p := *r.profile
	return &p
}

// Loading は初期取得が完了していないあいだtrueを返す。
func (r *CreatorRegistry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Reset はセッション終了時に状態を破棄する。
func (r *CreatorRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profile = nil
	r.loading = false
}
