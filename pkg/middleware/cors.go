package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS は任意のオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// ゲートウェイはブラウザ上の発音練習画面から直接呼び出される公開エンドポイントのため、
// オリジンを限定せず常に "*" を返す。許可メソッドは認識APIが必要とする
// POSTとプリフライト用のOPTIONSのみ。
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
