// Package scenario loads the catalog of extraction scenarios: per meeting
// type, the system prompt, the output schema, and vocabulary hints for the
// transcription stage.
package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/meetscribe-ai/platform/pkg/meeting"
	"gopkg.in/yaml.v3"
)

type Definition struct {
	ID              string                 `yaml:"id" json:"id"`
	Name            string                 `yaml:"name" json:"name"`
	MeetingType     string                 `yaml:"meeting_type" json:"meeting_type"`
	SystemPrompt    string                 `yaml:"system_prompt" json:"system_prompt"`
	OutputSchema    map[string]interface{} `yaml:"output_schema" json:"output_schema"`
	VocabularyHints []string               `yaml:"vocabulary_hints" json:"vocabulary_hints"`
}

type Catalog struct {
	Scenarios []Definition `yaml:"scenarios" json:"scenarios"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Default(), err
	}

	// Every error path hands back the built-in catalog so callers that log
	// the error and keep going still seed working scenarios.
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Default(), err
	}
	if len(cat.Scenarios) == 0 {
		return Default(), errors.New("no scenarios configured")
	}
	for _, def := range cat.Scenarios {
		if def.ID == "" || def.SystemPrompt == "" {
			return Default(), fmt.Errorf("scenario %q needs an id and a system prompt", def.Name)
		}
	}
	return cat, nil
}

func Default() Catalog {
	return Catalog{Scenarios: []Definition{
		{
			ID:           "discovery-call",
			Name:         "Discovery Call",
			MeetingType:  "discovery",
			SystemPrompt: "You extract structured notes from sales discovery call transcripts. Capture pains, goals, budget signals and next steps. Respond only with JSON matching the provided schema.",
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary":     map[string]interface{}{"type": "string"},
					"pains":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"next_steps":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"action_items": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
			},
		},
		{
			ID:           "weekly-sync",
			Name:         "Weekly Sync",
			MeetingType:  "sync",
			SystemPrompt: "You extract structured notes from recurring team sync transcripts. Capture decisions, blockers and owners per action item. Respond only with JSON matching the provided schema.",
			OutputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary":   map[string]interface{}{"type": "string"},
					"decisions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"blockers":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
			},
			VocabularyHints: []string{"standup", "sprint", "retro"},
		},
	}}
}

// Seed upserts every catalog scenario so meetings can reference them by id.
func Seed(ctx context.Context, store meeting.Store, cat Catalog) error {
	for _, def := range cat.Scenarios {
		schema, err := json.Marshal(def.OutputSchema)
		if err != nil {
			return fmt.Errorf("marshalling schema for scenario %s: %w", def.ID, err)
		}
		var hints []byte
		if len(def.VocabularyHints) > 0 {
			if hints, err = json.Marshal(def.VocabularyHints); err != nil {
				return fmt.Errorf("marshalling hints for scenario %s: %w", def.ID, err)
			}
		}
		err = store.UpsertScenario(ctx, &meeting.ScenarioModel{
			ID:              def.ID,
			Name:            def.Name,
			MeetingType:     def.MeetingType,
			SystemPrompt:    def.SystemPrompt,
			OutputSchema:    schema,
			VocabularyHints: hints,
		})
		if err != nil {
			return fmt.Errorf("seeding scenario %s: %w", def.ID, err)
		}
	}
	return nil
}
