package meeting

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a map-backed Store used by tests and local development.
// Methods return defensive copies so callers cannot mutate stored state.
type MemoryStore struct {
	mu           sync.RWMutex
	meetings     map[string]*MeetingModel
	blobs        map[string]*UploadBlobModel
	transcripts  map[string]*TranscriptModel
	artifacts    map[string]*ArtifactsModel
	procErrors   map[string][]ProcessingErrorModel
	scenarios    map[string]*ScenarioModel
	clients      map[string]*ClientModel
	participants map[string][]ParticipantModel
	validations  map[string]*ValidationModel
	nextErrorID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		meetings:     make(map[string]*MeetingModel),
		blobs:        make(map[string]*UploadBlobModel),
		transcripts:  make(map[string]*TranscriptModel),
		artifacts:    make(map[string]*ArtifactsModel),
		procErrors:   make(map[string][]ProcessingErrorModel),
		scenarios:    make(map[string]*ScenarioModel),
		clients:      make(map[string]*ClientModel),
		participants: make(map[string][]ParticipantModel),
		validations:  make(map[string]*ValidationModel),
	}
}

// PutMeeting seeds or replaces a meeting row.
func (s *MemoryStore) PutMeeting(m *MeetingModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.meetings[m.ID] = &cp
}

func (s *MemoryStore) PutBlob(b *UploadBlobModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.blobs[b.MeetingID] = &cp
}

func (s *MemoryStore) PutClient(c *ClientModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID] = &cp
}

func (s *MemoryStore) GetMeeting(ctx context.Context, id string) (*MeetingModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrMeetingNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrMeetingNotFound
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetUploadBlob(ctx context.Context, meetingID string) (*UploadBlobModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[meetingID]
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) MarkBlobDeleted(ctx context.Context, meetingID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[meetingID]
	if !ok {
		return ErrBlobNotFound
	}
	t := at
	b.DeletedAt = &t
	return nil
}

func (s *MemoryStore) SetBlobExpiry(ctx context.Context, meetingID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[meetingID]
	if !ok {
		return ErrBlobNotFound
	}
	t := at
	b.ExpiresAt = &t
	return nil
}

func (s *MemoryStore) ListExpiredBlobs(ctx context.Context, now time.Time) ([]UploadBlobModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []UploadBlobModel
	for _, b := range s.blobs {
		if b.ExpiresAt != nil && !b.ExpiresAt.After(now) && b.DeletedAt == nil {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTranscript(ctx context.Context, meetingID string) (*TranscriptModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcripts[meetingID]
	if !ok {
		return nil, ErrTranscriptNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateTranscript(ctx context.Context, t *TranscriptModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.CreatedAt = time.Now().UTC()
	cp := *t
	s.transcripts[t.MeetingID] = &cp
	return nil
}

func (s *MemoryStore) GetArtifacts(ctx context.Context, meetingID string) (*ArtifactsModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[meetingID]
	if !ok {
		return nil, ErrArtifactsNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) CreateArtifacts(ctx context.Context, a *ArtifactsModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	s.artifacts[a.MeetingID] = &cp
	return nil
}

func (s *MemoryStore) RecordError(ctx context.Context, e *ProcessingErrorModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErrorID++
	e.ID = s.nextErrorID
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	s.procErrors[e.MeetingID] = append(s.procErrors[e.MeetingID], *e)
	return nil
}

func (s *MemoryStore) ListErrors(ctx context.Context, meetingID string, limit int) ([]ProcessingErrorModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	errs := s.procErrors[meetingID]
	out := make([]ProcessingErrorModel, 0, limit)
	for i := len(errs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, errs[i])
	}
	return out, nil
}

func (s *MemoryStore) IncrementAutoRetry(ctx context.Context, meetingID string, last, next time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[meetingID]
	if !ok {
		return ErrMeetingNotFound
	}
	m.AutoRetryCount++
	l, n := last, next
	m.LastAutoRetryAt = &l
	m.NextAutoRetryAt = &n
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListRetryDue(ctx context.Context, now time.Time, ceiling int) ([]MeetingModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MeetingModel
	for _, m := range s.meetings {
		if !m.Status.Failed() {
			continue
		}
		if m.NextAutoRetryAt == nil || m.NextAutoRetryAt.After(now) {
			continue
		}
		if m.AutoRetryCount >= ceiling {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) GetScenario(ctx context.Context, id string) (*ScenarioModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenarios[id]
	if !ok {
		return nil, ErrScenarioNotFound
	}
	cp := *sc
	return &cp, nil
}

func (s *MemoryStore) UpsertScenario(ctx context.Context, sc *ScenarioModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.scenarios[sc.ID]; ok {
		sc.CreatedAt = existing.CreatedAt
	} else if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now
	cp := *sc
	s.scenarios[sc.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClient(ctx context.Context, id string) (*ClientModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, meetingID string) ([]ParticipantModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ParticipantModel(nil), s.participants[meetingID]...), nil
}

func (s *MemoryStore) PutParticipants(meetingID string, participants []ParticipantModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[meetingID] = append([]ParticipantModel(nil), participants...)
}

func (s *MemoryStore) CreateValidation(ctx context.Context, v *ValidationModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.validations[v.MeetingID]; ok {
		return ErrAlreadyValidated
	}
	if v.DecidedAt.IsZero() {
		v.DecidedAt = time.Now().UTC()
	}
	cp := *v
	s.validations[v.MeetingID] = &cp
	return nil
}
