package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pingbase/pingbase/internal/config"
)

func testRequest() Request {
	return Request{
		Model:  "gpt-5-mini",
		System: "be strict",
		Prompt: "score this",
		Schema: NamedSchema{
			Name:        "SignalRelevance",
			Description: "Relevance score",
			Schema: Schema{
				Type: "object",
				Properties: map[string]Property{
					"score": {Type: "integer"},
				},
				Required: []string{"score"},
			},
		},
	}
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"score\":72}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "test-key", time.Second)
	out, err := c.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"score":72}` {
		t.Errorf("out = %q", out)
	}
	if auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got["model"] != "gpt-5-mini" {
		t.Errorf("model = %v", got["model"])
	}
	rf := got["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type = %v", rf["type"])
	}
	js := rf["json_schema"].(map[string]any)
	if js["name"] != "SignalRelevance" || js["strict"] != true {
		t.Errorf("json_schema = %v", js)
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestOpenAIRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "k", time.Second).Complete(context.Background(), testRequest())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestOpenAIRefusalAndEmpty(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"refusal", `{"choices":[{"message":{"content":"","refusal":"no"}}]}`},
		{"empty", `{"choices":[{"message":{"content":"  "},"finish_reason":"length"}]}`},
		{"no choices", `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(srv.URL, "k", time.Second).Complete(context.Background(), testRequest())
			if !errors.Is(err, ErrSchema) {
				t.Errorf("err = %v, want ErrSchema", err)
			}
		})
	}
}

func TestOpenAITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL, "k", 50*time.Millisecond).Complete(context.Background(), testRequest())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"{\"score\":10}"}}`)
	}))
	defer srv.Close()

	out, err := NewOllamaClient(srv.URL, time.Second).Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"score":10}` {
		t.Errorf("out = %q", out)
	}
	if got.Stream {
		t.Error("stream = true, want false")
	}
	if got.Format.Type != "object" || got.Format.Properties["score"].Type != "integer" {
		t.Errorf("format = %+v", got.Format)
	}
}

func TestDecode(t *testing.T) {
	type out struct {
		Score int `json:"score"`
	}

	var o out
	if err := Decode("```json\n{\"score\": 5}\n```", &o); err != nil || o.Score != 5 {
		t.Errorf("fenced: %v, %+v", err, o)
	}
	if err := Decode(`{"score": 5, "extra": 1}`, &o); !errors.Is(err, ErrSchema) {
		t.Errorf("unknown field: err = %v", err)
	}
	if err := Decode(`{"score": "high"}`, &o); !errors.Is(err, ErrSchema) {
		t.Errorf("wrong type: err = %v", err)
	}
	if err := Decode(`{"score": 1} {"score": 2}`, &o); !errors.Is(err, ErrSchema) {
		t.Errorf("trailing: err = %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := config.Default().LLM
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*OpenAIClient); !ok {
		t.Errorf("default provider = %T", c)
	}

	cfg.Provider = "ollama"
	c, _ = New(cfg)
	if _, ok := c.(*OllamaClient); !ok {
		t.Errorf("ollama provider = %T", c)
	}

	cfg.Provider = "bard"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOllamaEnsureModels(t *testing.T) {
	var pulled []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"qwen3:8b"},{"name":"llama3.2:latest"}]}`)
		case "/api/pull":
			var body struct {
				Name string `json:"name"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			pulled = append(pulled, body.Name)
			fmt.Fprintln(w, `{"status":"pulling manifest"}`)
			fmt.Fprintln(w, `{"status":"downloading","total":100,"completed":50}`)
			fmt.Fprintln(w, `{"status":"success"}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	c := NewOllamaClient(srv.URL, time.Second)
	err := c.EnsureModels(context.Background(), []string{"qwen3:8b", "llama3.2", "gemma3", "gemma3"}, &out)
	if err != nil {
		t.Fatalf("EnsureModels: %v", err)
	}
	if len(pulled) != 1 || pulled[0] != "gemma3" {
		t.Errorf("pulled = %v, want only gemma3", pulled)
	}
	if !strings.Contains(out.String(), "downloading 50%") {
		t.Errorf("progress output = %q", out.String())
	}
}

func TestOllamaEnsureModelsPullError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
	}))
	defer srv.Close()

	err := NewOllamaClient(srv.URL, time.Second).EnsureModels(context.Background(), []string{"nope"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("err = %v", err)
	}
}

func TestOllamaEnsureModelsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	err := NewOllamaClient(srv.URL, time.Second).EnsureModels(context.Background(), []string{"qwen3"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("err = %v", err)
	}
}
