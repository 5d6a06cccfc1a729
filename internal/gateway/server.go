package gateway

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/hatsuon/pkg/middleware"
	"github.com/nao1215/hatsuon/pkg/vsr"
)

// maxUploadSize は受け付けるリクエストボディの最大サイズ（32MB）。
// テスト時に差し替え可能にするためvarとして宣言する。
var maxUploadSize int64 = 32 << 20

var (
	// errUnsupportedMediaType はContent-Typeがmultipart/form-dataでないことを示す。
	errUnsupportedMediaType = errors.New("Content-Typeがmultipart/form-dataではない")
	// errMissingAttachment は転送対象の添付ファイルが見つからないことを示す。
	errMissingAttachment = errors.New("clipまたはframeの添付ファイルが無い")
	// errUploadTooLarge はリクエストボディがmaxUploadSizeを超えたことを示す。
	errUploadTooLarge = errors.New("アップロードサイズが上限を超えている")
)

// Config はゲートウェイサービスの設定。
// 起動時に一度だけ読み込み、リクエストごとに変化しない。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// VSRURL はVSRサービスの推論エンドポイントURL。
	// 空の場合はスタブモードで動作する。
	VSRURL string `env:"VSR_URL"`
	// VSRAPIKey はVSRサービスへ転送するBearerトークン。省略可能。
	VSRAPIKey string `env:"VSR_API_KEY"`
}

// Server はVSRゲートウェイサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// vsr はVSRサービスへのクライアント。スタブモードではnil。
	vsr *vsr.Client
}

// NewServer は新しいゲートウェイサーバーを生成する。
// cfg.VSRURLが空の場合はスタブモードとなり、VSRサービスへの通信を行わずに
// 決め打ちの成功応答を返す。
func NewServer(cfg Config) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())

	s := &Server{
		router: router,
		port:   cfg.Port,
	}
	if cfg.VSRURL != "" {
		s.vsr = vsr.New(cfg.VSRURL, cfg.VSRAPIKey)
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// 口元映像からの発話認識
		api.POST("/lipread", s.handleLipread())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway", "mode": s.mode()})
	})
}

// mode は動作モードを返す。VSRサービスが未設定の場合は"stub"。
func (s *Server) mode() string {
	if s.vsr == nil {
		return "stub"
	}
	return "live"
}

// handleLipread は口元映像からの発話認識リクエストを処理するハンドラを返す。
//
// マルチパートフォームのclip(動画)またはframe(静止画)をVSRサービスへ
// 転送し、正規化した認識結果を返す。入力の検証はスタブモードでも行い、
// 有効な入力に対してのみスタブ応答を返す。
func (s *Server) handleLipread() gin.HandlerFunc {
	return func(c *gin.Context) {
		att, err := extractAttachment(c)
		if err != nil {
			respondError(c, err)
			return
		}

		// スタブモード: VSRサービスを呼ばずに決め打ちの成功応答を返す
		if s.vsr == nil {
			c.JSON(http.StatusOK, vsr.Result{
				OK:       true,
				Text:     "",
				Phonemes: []string{},
				Tokens:   []string{},
				Note:     "VSRサービスが未設定のためスタブ応答を返しています",
			})
			return
		}

		ctx := vsr.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		result, err := s.vsr.Recognize(ctx, att)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// extractAttachment はマルチパートフォームから転送対象の添付ファイルを1件取り出す。
// clipとframeの両方が存在する場合は、パートの出現順に関係なくclipを優先する。
// clip/frame以外のフィールドは意図的に読み捨て、VSRサービスへ転送しない。
//
// パートはストリーミングで判定する。標準ライブラリのフォーム解析は
// ファイル名が空のパートを文字列フィールドとして格納するため、ファイル名の
// 無い添付ファイルを受け付けられない。
func extractAttachment(c *gin.Context) (vsr.Attachment, error) {
	if !isMultipartContentType(c.GetHeader("Content-Type")) {
		return vsr.Attachment{}, errUnsupportedMediaType
	}

	// 巨大なボディをメモリへ読み込まないよう、読み取り量全体を制限する。
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	reader, err := c.Request.MultipartReader()
	if err != nil {
		return vsr.Attachment{}, errMissingAttachment
	}

	var frame *vsr.Attachment
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return vsr.Attachment{}, classifyPartError(err)
		}

		field := part.FormName()
		if (field != vsr.FieldClip && field != vsr.FieldFrame) || !isFilePart(part) {
			continue
		}

		data, err := io.ReadAll(part)
		if err != nil {
			return vsr.Attachment{}, classifyPartError(err)
		}
		att := vsr.Attachment{
			Field:       field,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}
		// clipが最優先のため、見つかった時点で残りのパートは読まない。
		if field == vsr.FieldClip {
			return att, nil
		}
		if frame == nil {
			frame = &att
		}
	}

	if frame != nil {
		return *frame, nil
	}
	return vsr.Attachment{}, errMissingAttachment
}

// isFilePart はパートがバイナリファイルパートかどうかを判定する。
// Content-Dispositionにfilenameパラメータを持つ(空文字でも構わない)か、
// パート自身にContent-Typeヘッダーが宣言されていればファイルパートとみなす。
// プレーンな文字列フィールドはどちらも持たない。
func isFilePart(part *multipart.Part) bool {
	if _, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition")); err == nil {
		if _, ok := params["filename"]; ok {
			return true
		}
	}
	return part.Header.Get("Content-Type") != ""
}

// classifyPartError はマルチパート読み取り中のエラーを分類する。
// 読み取り量の上限超過はサイズエラー、それ以外の壊れたボディは
// 添付ファイル無しと同じ扱いにする。
func classifyPartError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errUploadTooLarge
	}
	return errMissingAttachment
}

// isMultipartContentType はContent-Typeヘッダーがマルチパートフォームを表して
// いるかどうかを判定する。完全なMIMEパースは行わず、大文字小文字を無視した
// 部分一致で判定する。
func isMultipartContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "multipart/form-data")
}

// respondError は失敗を分類し、HTTPステータスコードと安定した
// {"error": ..., "detail": ...} 形式のレスポンスへ変換する。
func respondError(c *gin.Context, err error) {
	var statusErr *vsr.StatusError

	switch {
	case errors.Is(err, errUnsupportedMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Typeはmultipart/form-dataである必要があります"})
	case errors.Is(err, errMissingAttachment):
		c.JSON(http.StatusBadRequest, gin.H{"error": "clipまたはframeの添付ファイルが必要です"})
	case errors.Is(err, errUploadTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("ファイルサイズが上限を超えています（最大%dMB）", maxUploadSize/(1<<20))})
	case errors.Is(err, vsr.ErrTimeout):
		log.Printf("VSRサービスへのリクエストがタイムアウト: request_id=%s", middleware.GetRequestID(c))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "VSRサービスへのリクエストがタイムアウトしました"})
	case errors.As(err, &statusErr):
		log.Printf("VSRサービスがエラーを返却: status=%d, request_id=%s", statusErr.StatusCode, middleware.GetRequestID(c))
		c.JSON(http.StatusBadGateway, gin.H{"error": "VSRサービスがエラーを返しました", "detail": statusErr.Detail})
	case errors.Is(err, vsr.ErrUnreachable):
		log.Printf("VSRサービスに接続できない: request_id=%s, %v", middleware.GetRequestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "VSRサービスに接続できません", "detail": err.Error()})
	default:
		log.Printf("分類できないエラー: request_id=%s, %v", middleware.GetRequestID(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
	}
}
