// Package config はゲートウェイの設定を環境変数から読み込む。
//
// カレントディレクトリに .env ファイルがあれば先に読み込み、
// すでに設定済みの環境変数は上書きしない。レート制限やボディサイズ上限などの
// ポリシー値はすべて既定値付きの設定項目であり、運用時に調整できる。
package config
