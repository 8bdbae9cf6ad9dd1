package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe-ai/platform/pkg/meeting"
)

func TestLoadEmptyPathFallsBackToDefault(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	require.Len(t, cat.Scenarios, 2)
	assert.Equal(t, "discovery-call", cat.Scenarios[0].ID)
	assert.Equal(t, "weekly-sync", cat.Scenarios[1].ID)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	content := `scenarios:
  - id: board-review
    name: Board Review
    meeting_type: board
    system_prompt: Extract resolutions and votes.
    output_schema:
      type: object
      properties:
        resolutions:
          type: array
    vocabulary_hints:
      - quorum
      - proxy
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat.Scenarios, 1)

	def := cat.Scenarios[0]
	assert.Equal(t, "board-review", def.ID)
	assert.Equal(t, "board", def.MeetingType)
	assert.Equal(t, "Extract resolutions and votes.", def.SystemPrompt)
	assert.Equal(t, []string{"quorum", "proxy"}, def.VocabularyHints)
	assert.Equal(t, "object", def.OutputSchema["type"])
}

func TestLoadBrokenFileFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios: [not: valid: yaml\n"), 0o600))

	cat, err := Load(path)
	require.Error(t, err)
	require.Len(t, cat.Scenarios, 2)
	assert.Equal(t, "discovery-call", cat.Scenarios[0].ID)
}

func TestLoadRejectsIncompleteScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	content := `scenarios:
  - name: No Prompt
    meeting_type: misc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cat, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Default(), cat)
}

func TestLoadRejectsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios: []\n"), 0o600))

	cat, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, Default(), cat)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	cat, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Equal(t, Default(), cat)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := meeting.NewMemoryStore()

	require.NoError(t, Seed(ctx, store, Default()))

	sc, err := store.GetScenario(ctx, "weekly-sync")
	require.NoError(t, err)
	assert.Equal(t, "Weekly Sync", sc.Name)
	assert.NotEmpty(t, sc.SystemPrompt)
	assert.JSONEq(t, `["standup","sprint","retro"]`, string(sc.VocabularyHints))

	// Seeding twice is an upsert, not a duplicate-key failure.
	require.NoError(t, Seed(ctx, store, Default()))
}
