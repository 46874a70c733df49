package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds the Ollama endpoint and model names.
type Config struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// ChatResult is the assistant reply plus the generation stats Ollama reports.
type ChatResult struct {
	Content   string
	EvalCount int
	Duration  time.Duration
}

// OllamaClient talks to Ollama's native HTTP API.
type OllamaClient struct {
	httpClient *http.Client
}

func NewOllamaClient() *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Chat sends the message list to /api/chat and returns the assistant reply.
func (c *OllamaClient) Chat(ctx context.Context, cfg Config, messages []ChatMessage) (*ChatResult, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}

	raw, err := c.post(ctx, cfg.BaseURL, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		EvalCount     int   `json:"eval_count"`
		TotalDuration int64 `json:"total_duration"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse chat json failed: %w", err)
	}
	if parsed.Message.Content == "" {
		return nil, fmt.Errorf("empty chat response")
	}
	return &ChatResult{
		Content:   parsed.Message.Content,
		EvalCount: parsed.EvalCount,
		Duration:  time.Duration(parsed.TotalDuration),
	}, nil
}

// Generate runs a single prompt through /api/generate. Used for short
// utility completions such as conversation titles.
func (c *OllamaClient) Generate(ctx context.Context, cfg Config, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"model":  cfg.Model,
		"prompt": prompt,
		"stream": false,
	}

	raw, err := c.post(ctx, cfg.BaseURL, "/api/generate", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse generate json failed: %w", err)
	}
	return parsed.Response, nil
}

// Embed returns the embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, cfg Config, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	reqBody := map[string]interface{}{
		"model":  cfg.EmbeddingModel,
		"prompt": text,
	}

	raw, err := c.post(ctx, cfg.BaseURL, "/api/embeddings", reqBody)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return parsed.Embedding, nil
}

// EmbedBatch embeds each text in turn; the embeddings endpoint takes a single
// prompt per call.
func (c *OllamaClient) EmbedBatch(ctx context.Context, cfg Config, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vec, err := c.Embed(ctx, cfg, t)
		if err != nil {
			return nil, err
		}
		result = append(result, vec)
	}
	return result, nil
}

func (c *OllamaClient) post(ctx context.Context, baseURL, path string, body map[string]interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request failed: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build ollama request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ollama response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama response status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
