// Package selection はアクティブ項目の解決ルールを提供する。
// 永続化された選択 → プライマリ → 先頭 → なし、のフォールバック連鎖を
// アカウントレジストリとプロファイルレジストリで共有する。
package selection

// ResolveActive はリストと永続化済みIDからアクティブなIDを解決する。
// 優先順位:
//  1. persistedIDがリスト内に存在すればそれを返す
//  2. primaryがtrueを返す最初の要素のID
//  3. リスト先頭の要素のID
//  4. リストが空なら空文字列
//
// idは要素から識別子を取り出す関数。primaryはnilを許容し、
// nilの場合はプライマリ段階をスキップする（プロファイルレジストリ用）。
func ResolveActive[T any](items []T, persistedID string, id func(T) string, primary func(T) bool) string {
	if len(items) == 0 {
		return ""
	}

	if persistedID != "" {
		for _, item := range items {
			if id(item) == persistedID {
				return persistedID
			}
		}
	}

	if primary != nil {
		for _, item := range items {
			if primary(item) {
				return id(item)
			}
		}
	}

	return id(items[0])
}
