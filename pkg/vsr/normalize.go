package vsr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result はVSRサービスの応答を正規化した認識結果。
type Result struct {
	// OK は認識処理が成功したかどうか。
	OK bool `json:"ok"`
	// Text は認識された発話テキスト。
	Text string `json:"text"`
	// Phonemes は認識された音素列。
	Phonemes []string `json:"phonemes"`
	// Tokens は認識されたトークン列。
	Tokens []string `json:"tokens"`
	// Raw はVSRサービスが返したJSONペイロード全体。
	// 正規化で拾わないフィールドをデバッグ用に保持する。
	Raw map[string]any `json:"raw,omitempty"`
	// Note は補足情報。スタブ応答であることの明示などに使う。
	Note string `json:"note,omitempty"`
}

// StatusError はVSRサービスが2xx以外のステータスを返したことを示すエラー。
type StatusError struct {
	// StatusCode はVSRサービスが返したHTTPステータスコード。
	StatusCode int
	// Detail はVSRサービスが返したエラー内容。
	// JSONとして解釈できた場合はその値、できなかった場合はボディ文字列、
	// ボディが空の場合は空のオブジェクト。
	Detail any
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("vsrサービスがエラーを返した: status=%d", e.StatusCode)
}

// normalize はVSRサービスのHTTP応答を認識結果へ正規化する。
//
// 2xxかつJSONオブジェクトの場合はtext/phonemes/tokensを取り出し、
// ペイロード全体をRawへ保持する。2xxでJSONオブジェクトとして解釈できない
// 場合はボディ全体を認識テキストとして扱う。2xx以外は*StatusErrorを返す。
func normalize(statusCode int, contentType string, body []byte) (*Result, error) {
	if statusCode < 200 || statusCode >= 300 {
		return nil, &StatusError{
			StatusCode: statusCode,
			Detail:     errorDetail(contentType, body),
		}
	}

	if isJSONContentType(contentType) {
		// JSONのnullはエラーなしでnilマップになるため、オブジェクトであることを
		// nilチェックで確認する。
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil && payload != nil {
			return &Result{
				OK:       true,
				Text:     stringField(payload, "text"),
				Phonemes: stringSlice(payload, "phonemes"),
				Tokens:   stringSlice(payload, "tokens"),
				Raw:      payload,
			}, nil
		}
		// JSONを宣言しながら解釈できないボディはプレーンテキストとして扱う
	}

	return &Result{
		OK:       true,
		Text:     string(body),
		Phonemes: []string{},
		Tokens:   []string{},
	}, nil
}

// errorDetail はエラー応答のボディをエラー詳細へ変換する。
func errorDetail(contentType string, body []byte) any {
	if len(body) == 0 {
		return map[string]any{}
	}
	if isJSONContentType(contentType) {
		var detail any
		if err := json.Unmarshal(body, &detail); err == nil {
			return detail
		}
	}
	return string(body)
}

// isJSONContentType はContent-TypeヘッダーがJSONを表しているかどうかを判定する。
// パラメータ付きの値(例: "application/json; charset=utf-8")も受け付ける。
func isJSONContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// stringField はJSONペイロードから文字列フィールドを取り出す。
// フィールドが存在しないか文字列でない場合は空文字を返す。
func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// stringSlice はJSONペイロードから文字列スライスのフィールドを取り出す。
// 文字列以外の要素は文字列表現へ変換する。フィールドが存在しないか
// 配列でない場合は空のスライスを返す。
func stringSlice(payload map[string]any, key string) []string {
	values, ok := payload[key].([]any)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			result = append(result, s)
			continue
		}
		result = append(result, fmt.Sprint(v))
	}
	return result
}
