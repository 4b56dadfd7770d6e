package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/planpilot/planpilot/internal/config"
)

func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.LLMConfig{
		Endpoint:       srv.URL,
		Model:          "test-model",
		TimeoutSeconds: 5,
		MaxRetries:     2,
	})
}

func TestChatSuccess(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["model"] != "test-model" {
			t.Errorf("model = %v", req["model"])
		}
		w.Write([]byte(chatReply(`{"ok":true}`)))
	})

	got, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"ok":true}` {
		t.Errorf("reply = %q", got)
	}
}

func TestChatRetriesOnServerError(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(chatReply("recovered")))
	})

	got, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if got != "recovered" {
		t.Errorf("reply = %q", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestChatDoesNotRetryClientError(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestChatExhaustsRetries(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatal("expected error")
	}
	// initial attempt + MaxRetries
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestJSONDecodesDirectly(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"name":"BookStand"}`)))
	})

	var out struct {
		Name string `json:"name"`
	}
	if err := c.JSON(context.Background(), []Message{{Role: "user", Content: "go"}}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "BookStand" {
		t.Errorf("name = %q", out.Name)
	}
}

func TestJSONStripsCodeFences(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("```json\n{\"name\":\"BookStand\"}\n```")))
	})

	var out struct {
		Name string `json:"name"`
	}
	if err := c.JSON(context.Background(), []Message{{Role: "user", Content: "go"}}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "BookStand" {
		t.Errorf("name = %q", out.Name)
	}
}

func TestJSONRepairRetry(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var req struct {
			Messages []Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if n == 1 {
			w.Write([]byte(chatReply("Sure! Here is the plan you asked for.")))
			return
		}
		// The repair turn carries the bad reply and a corrective
		// instruction.
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "user" {
			t.Errorf("repair turn role = %q", last.Role)
		}
		w.Write([]byte(chatReply(`{"name":"BookStand"}`)))
	})

	var out struct {
		Name string `json:"name"`
	}
	if err := c.JSON(context.Background(), []Message{{Role: "user", Content: "go"}}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Name != "BookStand" {
		t.Errorf("name = %q", out.Name)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestJSONFailsAfterSingleRepair(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(chatReply("still not json")))
	})

	var out map[string]any
	if err := c.JSON(context.Background(), []Message{{Role: "user", Content: "go"}}, &out); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want exactly one repair attempt", calls)
	}
}

func TestChatAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(chatReply("ok")))
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{
		Endpoint:       srv.URL,
		Model:          "test-model",
		APIKey:         "secret",
		TimeoutSeconds: 5,
	})

	if _, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
