package vsr

import (
	"errors"
	"net/http"
	"reflect"
	"testing"
)

// TestNormalize はVSRサービス応答の正規化を検証する。
func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("2xxかつJSONオブジェクトの場合にフィールドが取り出されること", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"text":"hi","phonemes":["h","aɪ"],"tokens":["hi"],"confidence":0.9}`)
		result, err := normalize(http.StatusOK, "application/json", body)
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if !result.OK {
			t.Error("OK = false, want true")
		}
		if result.Text != "hi" {
			t.Errorf("Text = %q, want %q", result.Text, "hi")
		}
		if want := []string{"h", "aɪ"}; !reflect.DeepEqual(result.Phonemes, want) {
			t.Errorf("Phonemes = %v, want %v", result.Phonemes, want)
		}
		if want := []string{"hi"}; !reflect.DeepEqual(result.Tokens, want) {
			t.Errorf("Tokens = %v, want %v", result.Tokens, want)
		}
		if result.Raw == nil {
			t.Fatal("Rawにペイロード全体が保持されるべき")
		}
		if got := result.Raw["confidence"]; got != 0.9 {
			t.Errorf("Raw[confidence] = %v, want %v", got, 0.9)
		}
	})

	t.Run("JSONにフィールドが無い場合に既定値が使われること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "application/json", []byte(`{"confidence":0.5}`))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if result.Text != "" {
			t.Errorf("Text = %q, want 空文字", result.Text)
		}
		if result.Phonemes == nil || len(result.Phonemes) != 0 {
			t.Errorf("Phonemes = %v, want 空のスライス", result.Phonemes)
		}
		if result.Tokens == nil || len(result.Tokens) != 0 {
			t.Errorf("Tokens = %v, want 空のスライス", result.Tokens)
		}
	})

	t.Run("2xxで非JSONの場合にボディ全体が認識テキストになること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "text/plain", []byte("hello there"))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if result.Text != "hello there" {
			t.Errorf("Text = %q, want %q", result.Text, "hello there")
		}
		if len(result.Phonemes) != 0 || len(result.Tokens) != 0 {
			t.Errorf("Phonemes = %v, Tokens = %v, want どちらも空", result.Phonemes, result.Tokens)
		}
		if result.Raw != nil {
			t.Errorf("Raw = %v, want nil", result.Raw)
		}
	})

	t.Run("JSONを宣言しながら壊れたボディはプレーンテキストとして扱われること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "application/json", []byte("{broken"))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if result.Text != "{broken" {
			t.Errorf("Text = %q, want %q", result.Text, "{broken")
		}
		if result.Raw != nil {
			t.Errorf("Raw = %v, want nil", result.Raw)
		}
	})

	t.Run("JSONオブジェクトでないJSONボディはプレーンテキストとして扱われること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "application/json", []byte(`["a","b"]`))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if result.Text != `["a","b"]` {
			t.Errorf("Text = %q, want %q", result.Text, `["a","b"]`)
		}
	})

	t.Run("JSONのnullボディはプレーンテキストとして扱われること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "application/json", []byte(`null`))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if result.Text != "null" {
			t.Errorf("Text = %q, want %q", result.Text, "null")
		}
		if result.Raw != nil {
			t.Errorf("Raw = %v, want nil", result.Raw)
		}
	})

	t.Run("2xx以外のJSON応答でStatusErrorに詳細が保持されること", func(t *testing.T) {
		t.Parallel()

		_, err := normalize(http.StatusServiceUnavailable, "application/json", []byte(`{"msg":"overloaded"}`))
		if err == nil {
			t.Fatal("normalize()がエラーを返すべきだが、nilが返った")
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("エラーが*StatusErrorであるべき: %v", err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d, want %d", statusErr.StatusCode, http.StatusServiceUnavailable)
		}
		want := map[string]any{"msg": "overloaded"}
		if !reflect.DeepEqual(statusErr.Detail, want) {
			t.Errorf("Detail = %v, want %v", statusErr.Detail, want)
		}
	})

	t.Run("2xx以外の非JSON応答でボディ文字列が詳細になること", func(t *testing.T) {
		t.Parallel()

		_, err := normalize(http.StatusBadGateway, "text/plain", []byte("upstream exploded"))

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("エラーが*StatusErrorであるべき: %v", err)
		}
		if statusErr.Detail != "upstream exploded" {
			t.Errorf("Detail = %v, want %q", statusErr.Detail, "upstream exploded")
		}
	})

	t.Run("JSONを宣言した壊れたエラーボディはボディ文字列が詳細になること", func(t *testing.T) {
		t.Parallel()

		_, err := normalize(http.StatusInternalServerError, "application/json", []byte("{oops"))

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("エラーが*StatusErrorであるべき: %v", err)
		}
		if statusErr.Detail != "{oops" {
			t.Errorf("Detail = %v, want %q", statusErr.Detail, "{oops")
		}
	})

	t.Run("2xx以外でボディが空の場合に空オブジェクトが詳細になること", func(t *testing.T) {
		t.Parallel()

		_, err := normalize(http.StatusBadGateway, "", nil)

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("エラーが*StatusErrorであるべき: %v", err)
		}
		detail, ok := statusErr.Detail.(map[string]any)
		if !ok {
			t.Fatalf("Detail = %T, want map[string]any", statusErr.Detail)
		}
		if len(detail) != 0 {
			t.Errorf("Detail = %v, want 空のオブジェクト", detail)
		}
	})

	t.Run("音素列の文字列以外の要素が文字列表現へ変換されること", func(t *testing.T) {
		t.Parallel()

		body := []byte(`{"phonemes":[1,true,"a"],"tokens":[2.5]}`)
		result, err := normalize(http.StatusOK, "application/json", body)
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if want := []string{"1", "true", "a"}; !reflect.DeepEqual(result.Phonemes, want) {
			t.Errorf("Phonemes = %v, want %v", result.Phonemes, want)
		}
		if want := []string{"2.5"}; !reflect.DeepEqual(result.Tokens, want) {
			t.Errorf("Tokens = %v, want %v", result.Tokens, want)
		}
	})

	t.Run("配列でないphonemesフィールドは空のスライスになること", func(t *testing.T) {
		t.Parallel()

		result, err := normalize(http.StatusOK, "application/json", []byte(`{"phonemes":"not-a-list"}`))
		if err != nil {
			t.Fatalf("normalize()でエラーが発生: %v", err)
		}

		if len(result.Phonemes) != 0 {
			t.Errorf("Phonemes = %v, want 空のスライス", result.Phonemes)
		}
	})
}

// TestStatusError はStatusErrorのエラーメッセージを検証する。
func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &StatusError{StatusCode: http.StatusServiceUnavailable, Detail: "busy"}
	want := "vsrサービスがエラーを返した: status=503"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// TestIsJSONContentType はContent-Type判定を検証する。
func TestIsJSONContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{name: "application/json", contentType: "application/json", want: true},
		{name: "charsetパラメータ付き", contentType: "application/json; charset=utf-8", want: true},
		{name: "大文字", contentType: "APPLICATION/JSON", want: true},
		{name: "+jsonサフィックス", contentType: "application/problem+json", want: true},
		{name: "text/plain", contentType: "text/plain", want: false},
		{name: "text/html", contentType: "text/html; charset=utf-8", want: false},
		{name: "空文字", contentType: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isJSONContentType(tt.contentType); got != tt.want {
				t.Errorf("isJSONContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}
