// Command directorio は会員名簿クライアントのコアをローカルHTTP APIとして起動する。
//
// サブコマンド:
//
//	serve        APIサーバー（デフォルト）
//	worker       孤立identityの修復と期限切れセッションの削除
//	migrate      データベースマイグレーション
//	healthcheck  /healthへの疎通確認
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/directorio/internal/app"
)

func main() {
	// .envが存在しない場合は環境変数だけを使う
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
