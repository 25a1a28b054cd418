package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestBuildChatEndpoint(t *testing.T) {
	tests := []struct {
		base, want string
	}{
		{"https://api.openai.com", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
	}
	for _, tt := range tests {
		if got := buildChatEndpoint(tt.base); got != tt.want {
			t.Errorf("buildChatEndpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestAdaptiveTimeout(t *testing.T) {
	base := 30 * time.Second
	tests := []struct {
		name  string
		texts []string
		want  time.Duration
	}{
		{"short", []string{"hi"}, 30 * time.Second},
		{"medium", []string{string(make([]byte, 900))}, 60 * time.Second},
		{"capped", []string{string(make([]byte, 100000))}, 120 * time.Second},
		{"empty", nil, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := adaptiveTimeout(base, tt.texts); got != tt.want {
			t.Errorf("%s: adaptiveTimeout = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestOpenAITranslateBatch(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write(chatReply(t, `["你好", "再见"]`))
	}))
	defer srv.Close()

	tr := NewOpenAITranslator(OpenAIConfig{
		BaseURL:        srv.URL,
		Model:          "test-model",
		TargetLanguage: "Simplified Chinese",
		APIKey:         "sk-test",
	})
	got, err := tr.TranslateBatch(context.Background(), []string{"Hello", "Goodbye"})
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if want := []string{"你好", "再见"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("message roles = %q/%q", gotReq.Messages[0].Role, gotReq.Messages[1].Role)
	}
}

func TestOpenAITranslateBatchProseWrappedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatReply(t, "Here you go:\n```json\n[\"你好\"]\n```\nEnjoy!"))
	}))
	defer srv.Close()

	tr := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL, Model: "m"})
	got, err := tr.TranslateBatch(context.Background(), []string{"Hello"})
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if len(got) != 1 || got[0] != "你好" {
		t.Errorf("got %v", got)
	}
}

func TestOpenAITranslateBatchRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		w.Write(chatReply(t, `["好"]`))
	}))
	defer srv.Close()

	tr := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL, Model: "m", Retries: 2})
	got, err := tr.TranslateBatch(context.Background(), []string{"ok"})
	if err != nil {
		t.Fatalf("TranslateBatch: %v", err)
	}
	if calls != 2 || got[0] != "好" {
		t.Errorf("calls = %d, got %v", calls, got)
	}
}

func TestOpenAITranslateBatchExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL, Model: "m", Retries: 2})
	if _, err := tr.TranslateBatch(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error after exhausted retries")
	} else if calls != 2 {
		t.Errorf("calls = %d, want 2: %v", calls, err)
	}
}

func TestIsTimeoutError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("context deadline exceeded"), true},
		{fmt.Errorf("request timed out"), true},
		{fmt.Errorf("HTTP 500 from x"), false},
	}
	for _, tt := range tests {
		if got := isTimeoutError(tt.err); got != tt.want {
			t.Errorf("isTimeoutError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
