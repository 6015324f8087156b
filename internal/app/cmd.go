package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はフィード取得と記事削除のワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandSetPassword は標準入力から読んだAPIパスワードをユーザーに設定する。
	CommandSetPassword Command = "set-password"
	// CommandImportOPML はOPMLファイルからカテゴリとフィードを登録する。
	CommandImportOPML Command = "import-opml"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandServe, CommandMigrate, CommandHealthcheck,
		CommandSetPassword, CommandImportOPML:
		return Command(args[0])
	default:
		return CommandServe
	}
}
