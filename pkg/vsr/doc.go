// Package vsr はVSR(視覚的音声認識)サービスとの通信を行うクライアントを提供する。
//
// ゲートウェイが受け取った口元の動画・静止画をVSRサービスへ転送し、
// 形式の異なる応答を一つの安定した認識結果へ正規化する。
// VSRサービスは信頼できない外部サービスとして扱い、期限付きの呼び出しと
// 失敗種別ごとのエラー分類を行う。
package vsr
