package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/meetscribe-ai/platform/pkg/common/config"
)

// OpenAIProvider calls an OpenAI-compatible chat completions API and asks for
// a JSON object conforming to the scenario's output schema.
type OpenAIProvider struct {
	apiKey    string
	baseURL   string
	modelName string
	client    *http.Client
}

func NewOpenAIProvider(cfg *config.Config) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:    cfg.LLMAPIKey,
		baseURL:   cfg.LLMBaseURL,
		modelName: cfg.LLMModelName,
		client:    &http.Client{Timeout: cfg.LLMTimeout},
	}
}

func (p *OpenAIProvider) ModelName() string { return p.modelName }

func (p *OpenAIProvider) Extract(ctx context.Context, req Request) (json.RawMessage, error) {
	userPrompt, err := buildUserPrompt(req)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"model": p.modelName,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm provider returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding llm response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no response from LLM")
	}

	content := result.Choices[0].Message.Content
	var structured json.RawMessage
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		return nil, fmt.Errorf("llm returned non-JSON content: %w", err)
	}
	return structured, nil
}

func buildUserPrompt(req Request) (string, error) {
	metaBytes, err := json.Marshal(req.Metadata)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Meeting metadata\n")
	b.Write(metaBytes)
	b.WriteString("\n\n")

	if len(req.OutputSchema) > 0 {
		b.WriteString("## Output schema\nRespond with a single JSON object conforming to this schema:\n")
		b.Write(req.OutputSchema)
		b.WriteString("\n\n")
	}

	if req.Metadata.ContextSummary != "" {
		b.WriteString("## Client context\n")
		b.WriteString(req.Metadata.ContextSummary)
		b.WriteString("\n\n")
	}

	b.WriteString("## Transcript\n")
	b.WriteString(req.TranscriptText)
	return b.String(), nil
}
