// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証済みユーザーを表す。
// IDプロバイダーが発行するユーザー情報のローカル表現。
type User struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Session はIDプロバイダーが発行した認証セッションを表す。
// セッションマネージャーが排他的に所有し、プロバイダーイベントごとに
// 全体を差し替える。部分的な変更は行わない。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *User
}

// Expired はセッションのアクセストークンが期限切れかどうかを判定する。
// ExpiresAtがゼロ値の場合は期限なしとして扱う。
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.After(s.ExpiresAt)
}
