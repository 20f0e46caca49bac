package deepseek

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/wanderhaven/llmcore/llm"
)

// streamChunk is one server-sent event payload on the streaming wire.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model   string     `json:"model"`
	Usage   *wireUsage `json:"usage,omitempty"`
	CacheID string     `json:"cache_id,omitempty"`
}

// postStream issues the request on the streaming protocol and assembles
// the chunks into a single response. Unparseable chunks are skipped with
// a warning; they cost at most a gap in the accumulated text, not the
// whole response.
func (c *Client) postStream(ctx context.Context, req *llm.Request, model string, messages []llm.Message) (*llm.Response, error) {
	httpResp, err := c.send(ctx, req, model, messages, true)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			raw = nil
		}
		return nil, c.mapStatusError(httpResp.StatusCode, raw)
	}

	resp, err := c.collectStream(httpResp.Body)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp, nil
}

func (c *Client) collectStream(body io.Reader) (*llm.Response, error) {
	var (
		content    strings.Builder
		resp       llm.Response
		sawChunk   bool
		terminated bool
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			terminated = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Warn().Err(err).Msg("Skipping unparseable stream chunk")
			continue
		}
		sawChunk = true

		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.CacheID != "" {
			resp.CacheID = chunk.CacheID
		}
		if chunk.Usage != nil {
			c.recordServerCache(*chunk.Usage)
			resp.Usage = llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				resp.StopReason = choice.FinishReason
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, llm.NewNetworkError(llm.ProviderDeepSeek, "reading stream", err)
	}
	if !sawChunk && !terminated {
		return nil, llm.NewMalformedResponseError(llm.ProviderDeepSeek, "stream produced no chunks", nil)
	}

	resp.Content = content.String()
	return &resp, nil
}
