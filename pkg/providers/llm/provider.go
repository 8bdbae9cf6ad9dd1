// Package llm adapts the artifact-extraction LLM behind a narrow interface.
package llm

import (
	"context"
	"encoding/json"

	"github.com/meetscribe-ai/platform/pkg/providers/transcription"
)

// Metadata conditions the extraction with who the meeting was for.
type Metadata struct {
	ClientName     string   `json:"client_name"`
	MeetingType    string   `json:"meeting_type"`
	ScenarioName   string   `json:"scenario_name"`
	Participants   []string `json:"participants"`
	ContextSummary string   `json:"context_summary,omitempty"`
}

type Request struct {
	TranscriptText string
	Segments       []transcription.Segment
	SystemPrompt   string
	OutputSchema   json.RawMessage
	Metadata       Metadata
}

type Provider interface {
	Extract(ctx context.Context, req Request) (json.RawMessage, error)
}
