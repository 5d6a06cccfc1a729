package vsr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// defaultTimeout はVSRサービス呼び出しの既定の期限。
// 推論は数秒かかることがあるため長めに取るが、無期限には待たない。
const defaultTimeout = 30 * time.Second

// maxResponseSize はVSRサービスから読み取るレスポンスボディの最大サイズ（10MB）。
// テスト時に差し替え可能にするためvarとして宣言する。
var maxResponseSize int64 = 10 << 20

var (
	// ErrTimeout はVSRサービスへのリクエストが期限内に完了しなかったことを示す。
	ErrTimeout = errors.New("vsrサービスへのリクエストがタイムアウトした")
	// ErrUnreachable はVSRサービスに接続できなかったことを示す。
	ErrUnreachable = errors.New("vsrサービスに接続できない")
)

const (
	// FieldClip は口元動画を転送する際のマルチパートフィールド名。
	FieldClip = "clip"
	// FieldFrame は口元静止画を転送する際のマルチパートフィールド名。
	FieldFrame = "frame"
)

// Attachment はVSRサービスへ転送する単一の添付ファイル。
type Attachment struct {
	// Field はマルチパートのフィールド名(FieldClipまたはFieldFrame)。
	Field string
	// Filename は添付ファイルのファイル名。空の場合はフィールド名に応じた既定値を使う。
	Filename string
	// ContentType は添付ファイルのContent-Type。空の場合はapplication/octet-streamを使う。
	ContentType string
	// Data は添付ファイルのバイナリデータ。
	Data []byte
}

// Client はVSRサービスへの転送を行うHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	// 期限はリクエストごとのコンテキストで制御するため、クライアント自体には設定しない。
	httpClient *http.Client
	// endpoint はVSRサービスの推論エンドポイントURL。
	endpoint string
	// apiKey はVSRサービスの認証キー。空の場合はAuthorizationヘッダーを付与しない。
	apiKey string
	// Timeout はリクエスト全体の期限。ゼロの場合はdefaultTimeoutを使う。
	// テスト時に短縮できるよう公開フィールドとして持つ。
	Timeout time.Duration
}

// New は新しいVSRサービス用クライアントを生成する。
// endpointにはVSRサービスの推論エンドポイントURL
// (例: "http://lipread:8000/lipread")を指定する。
// apiKeyが空でない場合、リクエストにBearerトークンとして付与する。
func New(endpoint, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Recognize は添付ファイルをVSRサービスへ送信し、認識結果を取得する。
//
// 呼び出し全体に期限を設け、期限超過時は進行中の通信を中断して
// ErrTimeoutをラップしたエラーを返す。接続できない場合はErrUnreachableを
// ラップしたエラーを返す。VSRサービスが2xx以外を返した場合は*StatusErrorを
// 返す。上流の4xx/5xxは通信の失敗ではなく、応答として正規化の対象になる。
func (c *Client) Recognize(ctx context.Context, att Attachment) (*Result, error) {
	body, contentType, err := buildMultipartBody(att)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// コンテキストからリクエストIDを伝播する
	if requestID, ok := ctx.Value(contextKeyRequestID).(string); ok {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("リクエストがキャンセルされた: %w", err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
	}
	defer resp.Body.Close()

	// レスポンスボディの読み取り量を制限する。上限を超えるボディは
	// 途中で打ち切らず、エラーとして扱う。
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		// ボディ読み取り中の期限超過もタイムアウトとして扱う
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err)
	}
	if int64(len(respBody)) > maxResponseSize {
		return nil, fmt.Errorf("レスポンスボディが大きすぎる: %dバイトを超えた", maxResponseSize)
	}

	return normalize(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
}

// quoteEscaper はContent-Dispositionヘッダー内の引用符とバックスラッシュをエスケープする。
var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildMultipartBody は添付ファイル1件だけを含むマルチパートボディを組み立てる。
// 戻り値はボディと、境界文字列を含むContent-Typeヘッダー値。
func buildMultipartBody(att Attachment) (*bytes.Buffer, string, error) {
	filename := att.Filename
	if filename == "" {
		filename = defaultFilename(att.Field)
	}
	partType := att.ContentType
	if partType == "" {
		partType = "application/octet-stream"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(att.Field), quoteEscaper.Replace(filename)))
	header.Set("Content-Type", partType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("マルチパートボディの組み立てに失敗: %w", err)
	}
	if _, err := part.Write(att.Data); err != nil {
		return nil, "", fmt.Errorf("添付ファイルの書き込みに失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("マルチパートボディの終端処理に失敗: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// defaultFilename はフィールド名に応じた既定のファイル名を返す。
func defaultFilename(field string) string {
	if field == FieldFrame {
		return "f.jpg"
	}
	return "mouth.webm"
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// WithRequestID はコンテキストにリクエストIDを設定する。
// VSRサービス呼び出し時にリクエストIDを伝播するために使用する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}
