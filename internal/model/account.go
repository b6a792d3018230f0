package model

// Platform は連携可能なソーシャルプラットフォームを表す。
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"

	// PlatformDefault はバックエンドが内部用に生成する合成アカウントの
	// プラットフォーム。UIに公開するリストからは必ず除外する。
	PlatformDefault Platform = "default"
)

// Account はバックエンドに登録された連携アカウントを表す。
// バックエンドから読み取り専用で取得し、ローカルでは変更しない。
type Account struct {
	ID        string   `json:"id"`
	Platform  Platform `json:"platform"`
	Username  string   `json:"username"`
	IsPrimary bool     `json:"is_primary"`
}

// FilterVisible は合成defaultプラットフォームのアカウントを除外した
// リストを返す。入力の順序を保持する。
func FilterVisible(accounts []Account) []Account {
	visible := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Platform == PlatformDefault {
			continue
		}
		visible = append(visible, a)
	}
	return visible
}
