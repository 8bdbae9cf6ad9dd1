package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/meetscribe-ai/platform/pkg/common/config"
	"golang.org/x/oauth2/clientcredentials"
)

// HTTPProvider talks to an enterprise STT API authenticated with OAuth2
// client credentials. The token source caches and refreshes tokens itself.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(cfg *config.Config) *HTTPProvider {
	creds := clientcredentials.Config{
		ClientID:     cfg.TranscriptionClientID,
		ClientSecret: cfg.TranscriptionClientSecret,
		TokenURL:     cfg.TranscriptionTokenURL,
	}
	client := creds.Client(context.Background())
	client.Timeout = cfg.TranscriptionTimeout

	return &HTTPProvider{
		baseURL: cfg.TranscriptionBaseURL,
		client:  client,
	}
}

func (p *HTTPProvider) Transcribe(ctx context.Context, req Request) (*Result, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", "audio")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, err
	}
	if req.LanguageHint != "" {
		if err := writer.WriteField("language", req.LanguageHint); err != nil {
			return nil, err
		}
	}
	for _, hint := range req.VocabularyHints {
		if err := writer.WriteField("vocabulary", hint); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding transcription response: %w", err)
	}
	if result.Text == "" {
		return nil, fmt.Errorf("transcription provider returned empty transcript")
	}
	return &result, nil
}
