// Package transcription adapts the external speech-to-text provider behind a
// narrow interface.
package transcription

import "context"

// Segment is one time-aligned slice of the transcript.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

type Request struct {
	Audio           []byte
	MimeType        string
	LanguageHint    string
	VocabularyHints []string
}

type Provider interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
