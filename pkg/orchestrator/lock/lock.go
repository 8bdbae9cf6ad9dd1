// Package lock provides distributed per-meeting mutual exclusion over an
// atomic set-if-absent backend. Holders are separate processes, so leases are
// TTL-bounded and token-checked rather than tied to a goroutine.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meetscribe-ai/platform/pkg/common/logger"
	"github.com/meetscribe-ai/platform/pkg/observability/metrics"
)

// ErrNotAcquired is returned when the bounded wait loop gives up. It is fatal
// for the current job attempt but not for the meeting.
var ErrNotAcquired = errors.New("lock not acquired")

// Backend is the atomic key-value surface the manager needs. The token checks
// make release and extend safe against a lease that already expired and was
// re-granted to another holder.
type Backend interface {
	SetNX(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// DeleteIfToken removes the key only while it still holds token.
	DeleteIfToken(ctx context.Context, key, token string) (bool, error)
	// ExpireIfToken refreshes the TTL only while the key still holds token.
	ExpireIfToken(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

type Manager struct {
	backend     Backend
	ttl         time.Duration
	extendEvery time.Duration
	waitDelay   time.Duration
	waitRetries int
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func WithExtendEvery(d time.Duration) Option {
	return func(m *Manager) { m.extendEvery = d }
}

func WithWait(delay time.Duration, retries int) Option {
	return func(m *Manager) {
		m.waitDelay = delay
		m.waitRetries = retries
	}
}

func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		ttl:         5 * time.Minute,
		extendEvery: time.Minute,
		waitDelay:   time.Second,
		waitRetries: 10,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lease is a held lock. Release is idempotent.
type Lease struct {
	manager  *Manager
	key      string
	token    string
	released bool
}

func lockKey(meetingID string) string {
	return fmt.Sprintf("lock:meeting:%s", meetingID)
}

// Acquire attempts a single non-blocking acquisition.
func (m *Manager) Acquire(ctx context.Context, meetingID string) (*Lease, bool, error) {
	token := uuid.New().String()
	granted, err := m.backend.SetNX(ctx, lockKey(meetingID), token, m.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock for meeting %s: %w", meetingID, err)
	}
	if !granted {
		metrics.IncLockContentions()
		return nil, false, nil
	}
	return &Lease{manager: m, key: lockKey(meetingID), token: token}, true, nil
}

// AcquireWait retries acquisition with a fixed delay until granted or the
// attempt budget runs out, in which case ErrNotAcquired is returned.
func (m *Manager) AcquireWait(ctx context.Context, meetingID string) (*Lease, error) {
	for attempt := 0; attempt < m.waitRetries; attempt++ {
		lease, granted, err := m.Acquire(ctx, meetingID)
		if err != nil {
			return nil, err
		}
		if granted {
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.waitDelay):
		}
	}
	return nil, fmt.Errorf("meeting %s: %w", meetingID, ErrNotAcquired)
}

// Extend refreshes the lease TTL. Failure means the lease expired or changed
// hands; callers log it and carry on with the original token until expiry.
func (l *Lease) Extend(ctx context.Context) error {
	ok, err := l.manager.backend.ExpireIfToken(ctx, l.key, l.token, l.manager.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lease on %s no longer held", l.key)
	}
	return nil
}

// Release drops the lease. Releasing an expired or already-released lease is
// a no-op, never an error.
func (l *Lease) Release(ctx context.Context) error {
	if l.released {
		return nil
	}
	l.released = true
	if _, err := l.manager.backend.DeleteIfToken(ctx, l.key, l.token); err != nil {
		return err
	}
	return nil
}

// Keep extends the lease periodically until the returned stop function is
// called. Extension failures are logged, not fatal.
func (l *Lease) Keep(ctx context.Context) (stop func()) {
	keepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.manager.extendEvery)
		defer ticker.Stop()
		for {
			select {
			case <-keepCtx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(keepCtx); err != nil {
					logger.Log.WithError(err).WithField("lock_key", l.key).
						Warn("failed to extend lock lease")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
