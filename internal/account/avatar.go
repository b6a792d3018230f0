package account

import (
	"net/url"

	"github.com/hitoshi/accountman/internal/model"
)

// avatarProviders はプラットフォームごとのアバター解決プロバイダーの
// 固定テーブル。合成defaultプラットフォームは対象外。
var avatarProviders = map[model.Platform]string{
	model.PlatformTwitter:   "https://unavatar.io/twitter/",
	model.PlatformInstagram: "https://unavatar.io/instagram/",
	model.PlatformYouTube:   "https://unavatar.io/youtube/",
	model.PlatformTikTok:    "https://unavatar.io/tiktok/",
	model.PlatformLinkedIn:  "https://unavatar.io/linkedin/",
}

// AvatarURL は(プラットフォーム, ユーザー名)から表示用アバターURLを
// 導出する純関数。合成defaultプラットフォームまたはユーザー名が
// 空の場合は空文字列を返す。
func AvatarURL(platform model.Platform, username string) string {
	if username == "" {
		return ""
	}
	base, ok := avatarProviders[platform]
	if !ok {
		return ""
	}
	return base + url.PathEscape(username)
}
