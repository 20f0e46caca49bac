package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderhaven/llmcore/contexts"
	"github.com/wanderhaven/llmcore/llm"
)

func successBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"content": content},
			"finish_reason": "stop",
		}},
		"model": "deepseek-chat",
		"usage": map[string]int{
			"prompt_tokens":     20,
			"completion_tokens": 8,
			"total_tokens":      28,
		},
		"cache_id": "srv-cache-1",
	})
	return string(body)
}

func newTestClient(t *testing.T, opts Options, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts.APIKey = "test-key"
	opts.BaseURL = server.URL
	c := New(opts, zerolog.Nop())
	c.Retryer().WithSleep(func(context.Context, time.Duration) error { return nil })
	return c
}

func TestGenerateSendsWireProtocol(t *testing.T) {
	var captured struct {
		auth string
		body map[string]any
	}
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		captured.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured.body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(successBody("hi there")))
	})

	resp, err := c.Generate(context.Background(), llm.NewRequest("be helpful", "say hi"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if captured.auth != "Bearer test-key" {
		t.Errorf("Authorization = %q", captured.auth)
	}
	if captured.body["model"] != DefaultModel {
		t.Errorf("model = %v, want default", captured.body["model"])
	}
	messages := captured.body["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "be helpful" {
		t.Errorf("first message = %v", first)
	}
	if resp.Content != "hi there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.CacheID != "srv-cache-1" {
		t.Errorf("CacheID = %q", resp.CacheID)
	}
}

func TestGenerateSchemaRequestsJSONFormat(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(successBody(`{"summary": "ok"}`)))
	})

	req := llm.NewRequest("s", "u")
	req.Schema = map[string]any{"type": "object"}
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	format, ok := body["response_format"].(map[string]any)
	if !ok || format["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
}

func TestGenerateFlowsConversationContext(t *testing.T) {
	store, err := contexts.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var wireMessages []llm.Message
	c := newTestClient(t, Options{Contexts: store}, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []llm.Message `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		wireMessages = body.Messages
		w.Write([]byte(successBody("first answer")))
	})

	contextID := contexts.NewContextID()
	req := llm.NewRequest("you are terse", "first question")
	req.ContextID = contextID
	if _, err := c.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	saved := store.Load(contextID)
	if len(saved) != 3 {
		t.Fatalf("saved %d messages, want system+user+assistant", len(saved))
	}
	if saved[2].Role != llm.RoleAssistant || saved[2].Content != "first answer" {
		t.Errorf("last saved message = %+v", saved[2])
	}

	// Second turn resumes from the stored context.
	second := llm.NewRequest("you are terse", "second question")
	second.ContextID = contextID
	if _, err := c.Generate(context.Background(), second); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(wireMessages) != 4 {
		t.Fatalf("second call sent %d messages, want prior 3 plus new user turn", len(wireMessages))
	}
	if wireMessages[3].Content != "second question" {
		t.Errorf("last wire message = %+v", wireMessages[3])
	}
}

func TestGenerateFailedTurnLeavesContextUnchanged(t *testing.T) {
	store, err := contexts.NewStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	contextID := contexts.NewContextID()
	seed := []llm.Message{{Role: llm.RoleSystem, Content: "s"}, {Role: llm.RoleUser, Content: "q"}, {Role: llm.RoleAssistant, Content: "a"}}
	store.Save(contextID, seed)

	c := newTestClient(t, Options{Contexts: store}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	req := llm.NewRequest("s", "another question")
	req.ContextID = contextID
	if _, err := c.Generate(context.Background(), req); err == nil {
		t.Fatal("expected an error")
	}

	after := store.Load(contextID)
	if len(after) != len(seed) {
		t.Errorf("context grew to %d messages after a failed turn", len(after))
	}
}

type recordingRecorder struct {
	hit, miss int
}

func (r *recordingRecorder) RecordServerCacheUsage(hitTokens, missTokens int) {
	r.hit += hitTokens
	r.miss += missTokens
}

func TestGenerateRecordsServerCacheUsage(t *testing.T) {
	recorder := &recordingRecorder{}
	c := newTestClient(t, Options{CacheRecorder: recorder}, func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": "ok"},
				"finish_reason": "stop",
			}},
			"model": "deepseek-chat",
			"usage": map[string]int{
				"prompt_tokens":            20,
				"completion_tokens":        5,
				"total_tokens":             25,
				"prompt_cache_hit_tokens":  15,
				"prompt_cache_miss_tokens": 5,
			},
		})
		w.Write(body)
	})

	if _, err := c.Generate(context.Background(), llm.NewRequest("s", "u")); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if recorder.hit != 15 || recorder.miss != 5 {
		t.Errorf("recorded %d/%d, want 15/5", recorder.hit, recorder.miss)
	}
}

func TestCreateEmbeddings(t *testing.T) {
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body embeddingRequest
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Input) != 2 {
			t.Errorf("input = %v", body.Input)
		}
		resp, _ := json.Marshal(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float64{0.4, 0.5}},
				{"index": 0, "embedding": []float64{0.1, 0.2}},
			},
		})
		w.Write(resp)
	})

	vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"}, "")
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 0.1 || vectors[1][0] != 0.4 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestCreateEmbeddingsMockMode(t *testing.T) {
	c := New(Options{MockMode: true}, zerolog.Nop())
	vectors, err := c.CreateEmbeddings(context.Background(), []string{"a", "b", "c"}, "")
	if err != nil {
		t.Fatalf("CreateEmbeddings: %v", err)
	}
	if len(vectors) != 3 || len(vectors[0]) != 128 {
		t.Errorf("mock vectors = %dx%d, want 3x128", len(vectors), len(vectors[0]))
	}
}
