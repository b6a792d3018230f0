// Package store はローカル永続キーバリューストアを提供する。
// プロセス再起動をまたいで生き残る、オリジンスコープの同期的文字列ストア。
// 不透明な識別子のみを保存し、トークンやPIIは保存しない
// （プロバイダーアダプターが自身のキーで管理するセッションブロブを除く）。
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// 各レジストリが所有する永続キー。レジストリ間でキーをまたぐ
// トランザクションは提供しない。
const (
	// KeyActiveAccountID はアクティブアカウントIDの永続キー。
	KeyActiveAccountID = "active_account_id"
	// KeyActiveStyleProfileID はアクティブスタイルプロファイルIDの永続キー。
	KeyActiveStyleProfileID = "active_style_profile_id"
)

// Store はSQLiteファイルを背後に持つ同期的キーバリューストア。
// 複数レジストリが異なるキーで共有する。
type Store struct {
	db *sql.DB
}

// Open はローカル状態DBを開き、Storeを生成する。
// 親ディレクトリが存在しない場合は作成する。
// スキーマの適用にはRunMigrationsを使用すること。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// ローカルファイルDBのため接続は1本に固定する
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// DB は背後のsql.DBを返す。マイグレーションとヘルスチェックで使用する。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close はストアを閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Get はキーに対応する値を返す。
// キーが存在しない場合は空文字列とfalseを返す。不在は常に正常な状態。
func (s *Store) Get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// Set はキーに値を保存する。既存の値は上書きする。
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}
	return nil
}

// Remove はキーを削除する。キーが存在しない場合もエラーにしない。
func (s *Store) Remove(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove %q: %w", key, err)
	}
	return nil
}
