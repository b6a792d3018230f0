package model

// StyleProfile は文体クローン用のスタイルプロファイルを表す。
type StyleProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreatorProfile はユーザーごとに1件のクリエイタープロファイルを表す。
// 保存処理は別所で行われるため、ローカルでは楽観的キャッシュとして
// シャローマージのみを行う。
type CreatorProfile struct {
	DisplayName string   `json:"display_name,omitempty"`
	Title       string   `json:"title,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Niches      []string `json:"niches,omitempty"`
	BrandVoice  string   `json:"brand_voice,omitempty"`
}

// CreatorProfileUpdate はCreatorProfileへの部分更新を表す。
// nilのフィールドは変更なしを意味する。
type CreatorProfileUpdate struct {
	DisplayName *string
	Title       *string
	AvatarURL   *string
	Niches      []string
	BrandVoice  *string
}

// Settings はユーザー設定を表す。
// ActiveProfileIDがnilの場合はスタイルクローン無効を意味する。
type Settings struct {
	ActiveProfileID *string `json:"active_profile_id"`
	DefaultPersona  string  `json:"default_persona"`
	DefaultTone     string  `json:"default_tone"`
}
