package authprovider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/accountman/internal/model"
)

// BlobStore はセッションブロブの読み書きに必要なストアのインターフェース。
// store.Storeの部分集合として定義する。
type BlobStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// sessionBlob はストアに永続化されるプロバイダーセッションのJSON形式。
// プロバイダーアダプターが排他的に所有する外部ブロブであり、
// 他のコンポーネントは読み取り専用のプローブ関数経由でのみ触れる。
type sessionBlob struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url,omitempty"`
	} `json:"user"`
}

// SessionKey はプロバイダーURLからセッションブロブの永続キーを導出する。
// 同一ストアを複数デプロイで共有しても衝突しないよう、ホスト名を含める。
func SessionKey(providerURL string) string {
	host := "local"
	if u, err := url.Parse(providerURL); err == nil && u.Host != "" {
		host = strings.ReplaceAll(u.Host, ":", "_")
	}
	return "pv_session_" + host
}

// marshalBlob はセッションをブロブJSONに変換する。
func marshalBlob(session *model.Session) (string, error) {
	var blob sessionBlob
	blob.AccessToken = session.AccessToken
	blob.RefreshToken = session.RefreshToken
	if !session.ExpiresAt.IsZero() {
		blob.ExpiresAt = session.ExpiresAt.Unix()
	}
	if session.User != nil {
		blob.User.ID = session.User.ID
		blob.User.Email = session.User.Email
		blob.User.DisplayName = session.User.DisplayName
		blob.User.AvatarURL = session.User.AvatarURL
	}

	b, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session blob: %w", err)
	}
	return string(b), nil
}

// parseBlob はブロブJSONをセッションに変換する。
func parseBlob(raw string) (*model.Session, error) {
	var blob sessionBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return nil, fmt.Errorf("failed to parse session blob: %w", err)
	}
	if blob.AccessToken == "" {
		return nil, fmt.Errorf("session blob has no access token")
	}

	session := &model.Session{
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
		User: &model.User{
			ID:          blob.User.ID,
			Email:       blob.User.Email,
			DisplayName: blob.User.DisplayName,
			AvatarURL:   blob.User.AvatarURL,
		},
	}
	if blob.ExpiresAt > 0 {
		session.ExpiresAt = time.Unix(blob.ExpiresAt, 0)
	}
	return session, nil
}

// AccessTokenFromStore はストアのセッションブロブからアクセストークンを
// 取り出す。リクエスト経路から呼ばれるため、いかなるデコード失敗でも
// エラーを返さず空文字列（トークンなし）にフォールバックする。
// 期限切れトークンもトークンなしとして扱う。
func AccessTokenFromStore(store BlobStore, key string) string {
	raw, ok := store.Get(key)
	if !ok || raw == "" {
		return ""
	}

	session, err := parseBlob(raw)
	if err != nil {
		return ""
	}

	if tokenExpired(session.AccessToken, session.ExpiresAt, time.Now()) {
		return ""
	}

	return session.AccessToken
}

// tokenExpired はアクセストークンが期限切れかどうかを判定する。
// トークンがJWTとして解釈できる場合はexpクレームを優先し、
// そうでない場合はブロブのexpires_atにフォールバックする。
// どちらの期限も得られない場合は有効として扱う。
func tokenExpired(accessToken string, blobExpiry time.Time, now time.Time) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return now.After(exp.Time)
		}
	}

	if !blobExpiry.IsZero() {
		return now.After(blobExpiry)
	}
	return false
}
