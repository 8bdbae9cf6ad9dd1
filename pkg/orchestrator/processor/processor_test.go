package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/meeting"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/cleanup"
	"github.com/meetscribe-ai/platform/pkg/orchestrator/retry"
	"github.com/meetscribe-ai/platform/pkg/providers/llm"
	"github.com/meetscribe-ai/platform/pkg/providers/transcription"
)

func init() {
	logger.Init()
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (s *fakeBlobStore) Fetch(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	if !ok {
		return nil, errors.New("object not found: " + path)
	}
	return data, nil
}

func (s *fakeBlobStore) Remove(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	s.removed = append(s.removed, path)
	return nil
}

type fakeTranscriber struct {
	calls  int
	err    error
	result transcription.Result
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ transcription.Request) (*transcription.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	return &r, nil
}

type fakeExtractor struct {
	calls   int
	err     error
	payload string
	lastReq llm.Request
}

func (f *fakeExtractor) Extract(_ context.Context, req llm.Request) (json.RawMessage, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.payload), nil
}

type fakeQueue struct {
	delays []time.Duration
}

func (q *fakeQueue) Requeue(_ context.Context, _ string, delay time.Duration) error {
	q.delays = append(q.delays, delay)
	return nil
}

// harness wires the full pipeline against in-memory collaborators.
type harness struct {
	store       *meeting.MemoryStore
	blobs       *fakeBlobStore
	transcriber *fakeTranscriber
	extractor   *fakeExtractor
	queue       *fakeQueue
	sched       *retry.Scheduler
	pipeline    *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := meeting.NewMemoryStore()
	blobs := newFakeBlobStore()
	stt := &fakeTranscriber{result: transcription.Result{
		Text:     "Alice: hello. Bob: let's review the roadmap.",
		Language: "en",
		Segments: []transcription.Segment{
			{Start: 0, End: 2.5, Speaker: "Alice", Text: "hello"},
			{Start: 2.5, End: 6, Speaker: "Bob", Text: "let's review the roadmap"},
		},
	}}
	ext := &fakeExtractor{payload: `{"summary":"roadmap review","action_items":[]}`}

	sm := meeting.NewStateMachine(store, meeting.NopNotifier{})
	queue := &fakeQueue{}
	sched := retry.NewScheduler(store, queue)
	reaper := cleanup.NewReaper(store, blobs, 24*time.Hour)
	transcriberStage := NewTranscriptionProcessor(store, sm, blobs, stt, reaper, sched)
	extractorStage := NewArtifactProcessor(store, sm, ext, reaper, sched, "gpt-4o")

	return &harness{
		store:       store,
		blobs:       blobs,
		transcriber: stt,
		extractor:   ext,
		queue:       queue,
		sched:       sched,
		pipeline:    NewPipeline(store, sm, transcriberStage, extractorStage),
	}
}

func (h *harness) seedMeeting() {
	h.store.PutMeeting(&meeting.MeetingModel{
		ID:          "met1",
		Title:       "Q3 roadmap review",
		MeetingType: "weekly-sync",
		ClientID:    "cli1",
		ScenarioID:  "weekly-sync",
		Status:      meeting.StatusUploaded,
	})
	h.store.PutBlob(&meeting.UploadBlobModel{
		MeetingID:   "met1",
		StoragePath: "uploads/met1/audio.ogg",
		MimeType:    "audio/ogg",
	})
	h.store.PutClient(&meeting.ClientModel{
		ID:             "cli1",
		Name:           "Acme Corp",
		ContextSummary: "Enterprise customer on the growth plan.",
	})
	h.store.PutParticipants("met1", []meeting.ParticipantModel{
		{MeetingID: "met1", Name: "Alice", Role: "Account Manager"},
		{MeetingID: "met1", Name: "Bob"},
	})
	h.store.UpsertScenario(context.Background(), &meeting.ScenarioModel{
		ID:              "weekly-sync",
		Name:            "Weekly Sync",
		MeetingType:     "weekly-sync",
		SystemPrompt:    "Extract decisions and action items.",
		OutputSchema:    []byte(`{"type":"object"}`),
		VocabularyHints: []byte(`["roadmap","OKR"]`),
	})
	h.blobs.objects["uploads/met1/audio.ogg"] = []byte("fake-ogg-bytes")
}

func TestPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedMeeting()

	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", m.Status)
	}

	transcript, err := h.store.GetTranscript(ctx, "met1")
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if transcript.Language != "en" {
		t.Errorf("language = %q", transcript.Language)
	}

	artifacts, err := h.store.GetArtifacts(ctx, "met1")
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	if artifacts.ModelName != "gpt-4o" {
		t.Errorf("model name = %q", artifacts.ModelName)
	}

	// One call per provider, no retries booked.
	if h.transcriber.calls != 1 || h.extractor.calls != 1 {
		t.Errorf("provider calls = %d/%d, want 1/1", h.transcriber.calls, h.extractor.calls)
	}
	if len(h.queue.delays) != 0 {
		t.Errorf("unexpected retry enqueues: %v", h.queue.delays)
	}

	// Success path reclaims the source media immediately.
	b, _ := h.store.GetUploadBlob(ctx, "met1")
	if b.DeletedAt == nil {
		t.Error("blob must be marked deleted on success")
	}
	if len(h.blobs.removed) != 1 {
		t.Errorf("object removals = %v, want the upload", h.blobs.removed)
	}

	// Extraction received the scenario prompt and client context.
	if h.extractor.lastReq.SystemPrompt != "Extract decisions and action items." {
		t.Errorf("system prompt = %q", h.extractor.lastReq.SystemPrompt)
	}
	if h.extractor.lastReq.Metadata.ClientName != "Acme Corp" {
		t.Errorf("client name = %q", h.extractor.lastReq.Metadata.ClientName)
	}
	if len(h.extractor.lastReq.Metadata.Participants) != 2 ||
		h.extractor.lastReq.Metadata.Participants[0] != "Alice (Account Manager)" {
		t.Errorf("participants = %v", h.extractor.lastReq.Metadata.Participants)
	}
}

func TestPipelineWalkForwardRecovery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedMeeting()

	// Crash scenario: transcript persisted, status still uploaded.
	h.store.CreateTranscript(ctx, &meeting.TranscriptModel{
		MeetingID: "met1",
		Text:      "recovered transcript",
		Language:  "en",
	})

	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", m.Status)
	}
	if h.transcriber.calls != 0 {
		t.Errorf("transcription must be skipped when a transcript exists, got %d calls", h.transcriber.calls)
	}
	if h.extractor.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", h.extractor.calls)
	}
	if h.extractor.lastReq.TranscriptText != "recovered transcript" {
		t.Errorf("transcript text = %q", h.extractor.lastReq.TranscriptText)
	}
}

func TestPipelineTerminalMeetingUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.PutMeeting(&meeting.MeetingModel{ID: "met1", Status: meeting.StatusValidated})

	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.transcriber.calls != 0 || h.extractor.calls != 0 {
		t.Fatal("finalized meetings must not be reprocessed")
	}
	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusValidated {
		t.Fatalf("status changed to %s", m.Status)
	}
}

func TestTranscriptionFailureTwice(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedMeeting()
	h.transcriber.err = errors.New("stt provider 503")

	// First attempt.
	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusFailedTranscription {
		t.Fatalf("status = %s, want failed_transcription", m.Status)
	}
	if m.AutoRetryCount != 1 {
		t.Fatalf("autoRetryCount = %d, want 1", m.AutoRetryCount)
	}

	// Second attempt: resume from the sink, fail again.
	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	m, _ = h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusFailedTranscription {
		t.Fatalf("status = %s, want failed_transcription", m.Status)
	}
	if m.AutoRetryCount != 2 {
		t.Fatalf("autoRetryCount = %d, want 2", m.AutoRetryCount)
	}
	if m.NextAutoRetryAt == nil {
		t.Fatal("nextAutoRetryAt must be stamped")
	}
	until := time.Until(*m.NextAutoRetryAt)
	if until < 9*time.Minute || until > 11*time.Minute {
		t.Errorf("next retry in %v, want ~10m", until)
	}

	// Two error rows, both from the transcription stage.
	rows, _ := h.store.ListErrors(ctx, "met1", 20)
	if len(rows) != 2 {
		t.Fatalf("error rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Stage != meeting.StageTranscription {
			t.Errorf("stage = %q, want transcription", row.Stage)
		}
		if row.ErrorCode != CodeProviderError {
			t.Errorf("code = %q, want provider_error", row.ErrorCode)
		}
	}

	// Retry delays follow the backoff ladder.
	if len(h.queue.delays) != 2 ||
		h.queue.delays[0] != 5*time.Minute || h.queue.delays[1] != 10*time.Minute {
		t.Errorf("retry delays = %v, want [5m 10m]", h.queue.delays)
	}

	// Failure path defers blob deletion behind an expiry.
	b, _ := h.store.GetUploadBlob(ctx, "met1")
	if b.ExpiresAt == nil {
		t.Error("failed meeting's blob must carry an expiry")
	}
	if b.DeletedAt != nil {
		t.Error("failed meeting's blob must not be deleted yet")
	}
}

func TestBlobMissingIsNotRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.PutMeeting(&meeting.MeetingModel{
		ID:     "met1",
		Status: meeting.StatusUploaded,
	})

	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// The transcription sink is unreachable from uploaded, so the meeting
	// lands in the system sink.
	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusFailedSystem {
		t.Fatalf("status = %s, want failed_system", m.Status)
	}
	if m.AutoRetryCount != 0 {
		t.Errorf("autoRetryCount = %d, retrying cannot restore a missing blob", m.AutoRetryCount)
	}
	if len(h.queue.delays) != 0 {
		t.Errorf("unexpected retry enqueues: %v", h.queue.delays)
	}

	rows, _ := h.store.ListErrors(ctx, "met1", 20)
	if len(rows) != 1 || rows[0].ErrorCode != CodeBlobMissing {
		t.Fatalf("error rows = %+v, want one blob_missing row", rows)
	}
}

func TestExtractionFailureThenResumeSkipsTranscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seedMeeting()
	h.extractor.err = errors.New("llm provider 429")

	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	m, _ := h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusFailedLLM {
		t.Fatalf("status = %s, want failed_llm", m.Status)
	}

	// Retry run: the saved transcript routes the resume straight to the llm
	// stage, no second transcription.
	h.extractor.err = nil
	if err := h.pipeline.Run(ctx, "met1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	m, _ = h.store.GetMeeting(ctx, "met1")
	if m.Status != meeting.StatusReady {
		t.Fatalf("status = %s, want ready", m.Status)
	}
	if h.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1", h.transcriber.calls)
	}
	if h.extractor.calls != 2 {
		t.Errorf("extractor calls = %d, want 2", h.extractor.calls)
	}

	rows, _ := h.store.ListErrors(ctx, "met1", 20)
	if len(rows) != 1 || rows[0].Stage != meeting.StageLLM {
		t.Fatalf("error rows = %+v, want one llm row", rows)
	}
}
