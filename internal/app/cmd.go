package app

import "fmt"

// Command はバイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"       // マイグレーション適用後にAPIサーバーを起動
	CommandMigrate     Command = "migrate"     // マイグレーションのみ
	CommandCleanup     Command = "cleanup"     // 認証関連テーブルの掃除を1回
	CommandHealthcheck Command = "healthcheck" // distrolessイメージ用の/healthプローブ
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandCleanup):     CommandCleanup,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。引数なしはserve。
// 綴り違いでサーバーが立ち上がらないよう、未知のコマンドはエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q (want serve, migrate, cleanup or healthcheck)", args[0])
	}
	return cmd, nil
}
