// Package gateway はVSRゲートウェイサービスの内部実装を提供する。
//
// クライアントからアップロードされた口元の動画・静止画を検証し、
// 外部のVSR(視覚的音声認識)サービスへ期限付きで転送し、形式の異なる
// 応答を一つの安定した認識結果へ正規化して返す。VSRサービスのURLが
// 未設定の場合はスタブモードとなり、通信を行わずに決め打ちの成功応答を
// 返す。外部からアクセス可能な唯一のサービスであり、VSRサービスとの
// 境界線として機能する。
package gateway
