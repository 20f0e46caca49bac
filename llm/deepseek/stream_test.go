package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/wanderhaven/llmcore/llm"
)

func TestGenerateStreamAssemblesChunks(t *testing.T) {
	var streamRequested bool
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		decodeJSONBody(t, r, &body)
		streamRequested, _ = body["stream"].(bool)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}],\"model\":\"deepseek-chat\"}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\", world\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"!\"},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3,\"total_tokens\":15},\"cache_id\":\"srv-9\"}\n\n" +
				"data: [DONE]\n",
		))
	})

	resp, err := c.GenerateStream(context.Background(), llm.NewRequest("s", "u"))
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if !streamRequested {
		t.Error("stream flag should be set on the wire")
	}
	if resp.Content != "Hello, world!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.StopReason != "stop" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if resp.CacheID != "srv-9" {
		t.Errorf("CacheID = %q", resp.CacheID)
	}
}

func TestGenerateStreamSkipsUnparseableChunks(t *testing.T) {
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
				"data: this is not json\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\" still ok\"},\"finish_reason\":\"stop\"}]}\n\n" +
				"data: [DONE]\n",
		))
	})

	resp, err := c.GenerateStream(context.Background(), llm.NewRequest("s", "u"))
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}
	if resp.Content != "ok still ok" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestGenerateStreamEmptyBodyIsMalformed(t *testing.T) {
	c := newTestClient(t, Options{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\n"))
	})

	_, err := c.GenerateStream(context.Background(), llm.NewRequest("s", "u"))
	if err == nil {
		t.Fatal("expected an error for a chunkless stream")
	}
	if !llm.IsMalformedResponseError(err) {
		t.Errorf("expected malformed response cause, got %v", err)
	}
}

func decodeJSONBody(t *testing.T, r *http.Request, v any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		t.Fatalf("decoding request body: %v", err)
	}
}
