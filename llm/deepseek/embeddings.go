package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/wanderhaven/llmcore/llm"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// CreateEmbeddings implements llm.Embedder. In mock mode it returns a
// fixed 128-dimension vector per input text.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string, model string) ([][]float64, error) {
	if model == "" {
		model = DefaultEmbeddingModel
	}

	if c.mockMode {
		vectors := make([][]float64, len(texts))
		for i := range texts {
			vec := make([]float64, 128)
			for j := range vec {
				vec[j] = 0.1
			}
			vectors[i] = vec
		}
		return vectors, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: texts})
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderDeepSeek, "encoding embeddings request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewInvalidRequestError(llm.ProviderDeepSeek, "building embeddings request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderDeepSeek, "embeddings request failed", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, llm.NewNetworkError(llm.ProviderDeepSeek, "reading embeddings response", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, c.mapStatusError(httpResp.StatusCode, raw)
	}

	var wire embeddingResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, llm.NewMalformedResponseError(llm.ProviderDeepSeek, "decoding embeddings response", err)
	}

	vectors := make([][]float64, len(wire.Data))
	for _, item := range wire.Data {
		if item.Index >= 0 && item.Index < len(vectors) {
			vectors[item.Index] = item.Embedding
		}
	}
	return vectors, nil
}
