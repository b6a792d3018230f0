package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はセッション・アカウントレイヤーを常駐モードで起動することを示す。
	CommandRun Command = "run"
	// CommandMigrate はローカル状態DBのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandAccounts は連携アカウントの一覧を表示することを示す。
	CommandAccounts Command = "accounts"
	// CommandSwitch はアクティブアカウントを切り替えることを示す。
	CommandSwitch Command = "switch"
	// CommandSignOut はサインアウトしてセッションを破棄することを示す。
	CommandSignOut Command = "signout"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "run":
		return CommandRun
	case "migrate":
		return CommandMigrate
	case "accounts":
		return CommandAccounts
	case "switch":
		return CommandSwitch
	case "signout":
		return CommandSignOut
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandRun
	}
}
