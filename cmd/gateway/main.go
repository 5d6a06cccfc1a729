// VSRゲートウェイサービスのエントリポイント。
// クライアントからアップロードされた口元の動画・静止画を検証し、
// 外部のVSR(視覚的音声認識)サービスへ転送して認識結果を返す。
// VSR_URLが未設定の場合はスタブモードで起動する。
package main

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/nao1215/hatsuon/internal/gateway"
)

func main() {
	// .envファイルがあれば読み込む。無くてもエラーにしない。
	_ = godotenv.Load()

	var cfg gateway.Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	if cfg.VSRURL == "" {
		log.Printf("VSR_URLが未設定のためスタブモードで起動します")
	}

	server := gateway.NewServer(cfg)

	log.Printf("ゲートウェイサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイサービスの起動に失敗: %v", err)
	}
}
