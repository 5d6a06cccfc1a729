// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ブラウザから直接呼び出される公開エンドポイントのためのCORS設定、
// リクエストIDの採番、パニックリカバリなど、
// ゲートウェイサービスで共通して使用するミドルウェアを含む。
package middleware
