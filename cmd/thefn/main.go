// Command thefn はサインインとプロフィール作成のAPIサーバー。
//
// サブコマンド: serve（デフォルト）, migrate, cleanup, healthcheck
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/thefn/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "thefn: %v\n", err)
		os.Exit(1)
	}
}
